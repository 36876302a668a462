package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-playground/validator/v10"
)

// MaxRequestBodyBytes caps JSON request bodies. Login is reachable before
// authentication, so it gets the same cap as the admin API.
const MaxRequestBodyBytes = 4 << 10

// validate is shared by every handler; field names are reported by their
// JSON key so messages match what the client sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest checks req's validate tags and describes the first
// offending field
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%s %s", fe.Field(), describeRule(fe))
	}
	return fmt.Errorf("invalid request: %w", err)
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be an email address"
	case "ip":
		return "must be an IPv4 or IPv6 address"
	case "numeric":
		return "must contain digits only"
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("fails the %q rule", fe.Tag())
}

// decodeJSONBody reads at most MaxRequestBodyBytes of r's body into dst and
// writes the error response itself when it returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteRequestTooLarge(w, "Request body too large")
			return false
		}
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}
