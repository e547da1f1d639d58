package model

import "time"

// SecurityAnswerCount is the number of recovery questions every account
// answers at registration.
const SecurityAnswerCount = 3

// User represents an account as stored in the `users` table.  The json
// tags are omitted on purpose: the struct carries the password hash,
// the security answer hashes and the reset code, so handlers always map
// it to a response type (see handler.publicUser) before writing it out.
//
// Fields:
//  ID                 – primary key identifier.
//  Email              – unique, lower-cased email address.
//  PasswordHash       – bcrypt hash of the password.
//  Name               – display name.
//  Bio, Location      – optional free-text profile fields.
//  ProfileImage       – relative path of the uploaded image, empty if none.
//  GenrePreferences   – set of preferred genres (order irrelevant).
//  SecurityAnswers    – bcrypt hashes of the normalized recovery answers.
//  Reputation         – counter shown on the profile, starts at 0.
//  ResetCode          – pending one-time password reset code, if any.
//  ResetCodeExpiresAt – expiry of ResetCode.
type User struct {
	ID                 uint64
	Email              string
	PasswordHash       string
	Name               string
	Bio                string
	Location           string
	ProfileImage       string
	GenrePreferences   []string
	SecurityAnswers    []string
	Reputation         int
	ResetCode          string
	ResetCodeExpiresAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResetCodeValid reports whether code matches the stored reset code and
// the code has not expired at now.
func (u User) ResetCodeValid(code string, now time.Time) bool {
	if u.ResetCode == "" || code == "" || u.ResetCode != code {
		return false
	}
	return u.ResetCodeExpiresAt != nil && now.Before(*u.ResetCodeExpiresAt)
}

// ProfileUpdate holds the optional profile fields a user may change.
// Nil pointers leave the stored value untouched.
type ProfileUpdate struct {
	Name     *string
	Bio      *string
	Location *string
}
