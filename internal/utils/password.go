package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// NormalizeAnswer trims and lower-cases a security answer so that
// "  Paris" and "paris" hash identically.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// HashAnswers hashes each normalized answer, keeping positions.
func HashAnswers(answers []string, cost int) ([]string, error) {
	out := make([]string, len(answers))
	for i, a := range answers {
		h, err := HashPassword(NormalizeAnswer(a), cost)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

// VerifyAnswers reports whether every answer matches the hash at the same
// position.  All hashes are checked even after a mismatch so the timing
// does not reveal which answer was wrong.
func VerifyAnswers(hashes, answers []string) bool {
	if len(hashes) == 0 || len(hashes) != len(answers) {
		return false
	}
	ok := true
	for i := range hashes {
		if !VerifyPassword(hashes[i], NormalizeAnswer(answers[i])) {
			ok = false
		}
	}
	return ok
}
