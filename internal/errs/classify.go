package errs

import (
	"errors"
	"fmt"
	"strings"
)

// markers maps substrings of yt-dlp error output to sentinel errors. Matching
// is case-insensitive and first-match wins, so more specific markers go first.
var markers = []struct {
	substr   string
	sentinel error
}{
	{"sign in to confirm your age", ErrAgeRestricted},
	{"age-restricted", ErrAgeRestricted},
	{"private video", ErrPrivate},
	{"video unavailable", ErrVideoUnavailable},
	{"has been removed", ErrVideoUnavailable},
	{"available in your country", ErrGeoBlocked},
	{"geo restriction", ErrGeoBlocked},
	{"http error 429", ErrRateLimited},
	{"too many requests", ErrRateLimited},
	{"connection reset", ErrNetwork},
	{"timed out", ErrNetwork},
	{"temporary failure in name resolution", ErrNetwork},
	{"network is unreachable", ErrNetwork},
}

// Classify wraps err with the sentinel matching the yt-dlp failure text, or
// returns err unchanged when no marker matches.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m.substr) {
			return fmt.Errorf("%w: %v", m.sentinel, err)
		}
	}
	return err
}

// IsRetryable reports whether the failure is transient and a retry with
// backoff may succeed.
func IsRetryable(err error) bool {
	classified := Classify(err)
	return errors.Is(classified, ErrNetwork) || errors.Is(classified, ErrRateLimited)
}
