package identity

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameSuffix = 10000
	maxUsernameLength = 150
	fallbackUsername  = "user"
)

// usernameBase returns everything before the first "@" of email, which seeds username derivation.
func usernameBase(email string) string {
	local := strings.TrimSpace(email)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	if local == "" {
		return fallbackUsername
	}
	return local
}

// usernameCandidate renders the nth candidate: base itself, then base1, base2 and so on.
func usernameCandidate(base string, n int) string {
	if n == 0 {
		return truncateUsername(base, 0)
	}
	suffix := strconv.Itoa(n)
	return truncateUsername(base, len(suffix)) + suffix
}

func truncateUsername(base string, reserved int) string {
	limit := maxUsernameLength - reserved
	if len(base) <= limit {
		return base
	}
	for limit > 0 && !utf8.RuneStart(base[limit]) {
		limit--
	}
	return base[:limit]
}

type usernameChecker interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// freeUsername walks the suffix sequence starting at from and returns the first
// candidate not held by any user together with its suffix.
func freeUsername(ctx context.Context, store usernameChecker, base string, from int) (string, int, error) {
	for n := from; n <= maxUsernameSuffix; n++ {
		candidate := usernameCandidate(base, n)
		taken, err := store.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", 0, newError(KindInternalFailure, err)
		}
		if !taken {
			return candidate, n, nil
		}
	}
	return "", 0, newError(KindUsernameExhausted, errUsernameExhausted)
}
