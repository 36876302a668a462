package auth_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source closed")
}

func TestGenerateCSRFToken_Is256BitHex(t *testing.T) {
	token, err := auth.GenerateCSRFToken(rand.Reader)
	require.NoError(t, err)

	assert.Len(t, token, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", token)
}

func TestGenerateCSRFToken_DistinctValues(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := auth.GenerateCSRFToken(rand.Reader)
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestGenerateCSRFToken_RandomnessFailure(t *testing.T) {
	token, err := auth.GenerateCSRFToken(failingReader{})

	assert.ErrorIs(t, err, models.ErrRandomnessUnavailable)
	assert.Empty(t, token)
}

func TestGenerateCSRFToken_ShortRead(t *testing.T) {
	_, err := auth.GenerateCSRFToken(bytes.NewReader(make([]byte, 10)))

	assert.ErrorIs(t, err, models.ErrRandomnessUnavailable)
}

func TestCompareCSRFTokens(t *testing.T) {
	token, err := auth.GenerateCSRFToken(rand.Reader)
	require.NoError(t, err)

	assert.True(t, auth.CompareCSRFTokens(token, token))
	assert.False(t, auth.CompareCSRFTokens(token, token[:63]+"x"))
	assert.False(t, auth.CompareCSRFTokens(token, ""))
	assert.False(t, auth.CompareCSRFTokens("", ""))
	assert.False(t, auth.CompareCSRFTokens(token, token[:32]))
}

// timeCompare returns the median duration of rounds batches of n comparisons
func timeCompare(stored, supplied string, rounds, n int) time.Duration {
	samples := make([]time.Duration, rounds)
	for r := range samples {
		start := time.Now()
		for i := 0; i < n; i++ {
			auth.CompareCSRFTokens(stored, supplied)
		}
		samples[r] = time.Since(start)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return samples[rounds/2]
}

func TestCompareCSRFTokens_TimeIndependentOfMatchingPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison skipped in short mode")
	}

	token, err := auth.GenerateCSRFToken(rand.Reader)
	require.NoError(t, err)

	flip := func(c byte) string {
		if c == '0' {
			return "1"
		}
		return "0"
	}
	noPrefix := flip(token[0]) + token[1:]
	longPrefix := token[:63] + flip(token[63])
	require.False(t, auth.CompareCSRFTokens(token, noPrefix))
	require.False(t, auth.CompareCSRFTokens(token, longPrefix))

	const rounds, n = 21, 20000
	// warm up before measuring
	timeCompare(token, noPrefix, 3, n)

	var early, late time.Duration
	for attempt := 0; attempt < 3; attempt++ {
		early = timeCompare(token, noPrefix, rounds, n)
		late = timeCompare(token, longPrefix, rounds, n)
		ratio := float64(late) / float64(early)
		if ratio < 1.5 && ratio > 1/1.5 {
			return
		}
	}
	t.Fatalf("comparison time depends on matching prefix: 0-byte prefix %v, 63-byte prefix %v", early, late)
}
