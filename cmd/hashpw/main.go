// Command hashpw prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/BradenHooton/gatekeeper/pkg/auth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "failed to read password:", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to hash password:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
