package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/book-exchange/internal/utils"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.auth.Register(ctx, RegisterInput{
		Name: " Ann ", Email: " A@X.com ", Password: "secret1",
		SecurityAnswers: []string{"Paris", "Rex", "Blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.Equal(t, "Ann", s.User.Name)
	assert.NotEqual(t, "secret1", s.User.PasswordHash)

	id, err := utils.ParseAccessToken("test-secret", s.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, id)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "a@x.com", f.mailer.sent[0].To)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "a@x.com")

	_, err := f.auth.Register(context.Background(), RegisterInput{
		Name: "Other", Email: "A@x.com", Password: "another1",
		SecurityAnswers: []string{"a", "b", "c"},
	})
	requireClass(t, &ErrValidation, err)
	assert.Equal(t, "email is already registered", Message(err))

	u, err := f.store.Users().GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, u.ID)
}

func TestRegisterValidation(t *testing.T) {
	valid := RegisterInput{Name: "Ann", Email: "a@x.com", Password: "secret1", SecurityAnswers: []string{"a", "b", "c"}}
	cases := map[string]func(*RegisterInput){
		"missing name":  func(in *RegisterInput) { in.Name = "  " },
		"bad email":     func(in *RegisterInput) { in.Email = "not-an-email" },
		"short pass":    func(in *RegisterInput) { in.Password = "12345" },
		"two answers":   func(in *RegisterInput) { in.SecurityAnswers = []string{"a", "b"} },
		"blank answer":  func(in *RegisterInput) { in.SecurityAnswers = []string{"a", " ", "c"} },
		"four answers":  func(in *RegisterInput) { in.SecurityAnswers = []string{"a", "b", "c", "d"} },
		"missing email": func(in *RegisterInput) { in.Email = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := valid
			in.SecurityAnswers = append([]string(nil), valid.SecurityAnswers...)
			mutate(&in)
			_, err := f.auth.Register(context.Background(), in)
			requireClass(t, &ErrValidation, err)
		})
	}
}

func TestRegisterIgnoresWelcomeEmailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errBoom
	f.register(t, "a@x.com")
}

func TestLoginErrorsAreUniform(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com")
	ctx := context.Background()

	s, err := f.auth.Login(ctx, "A@X.COM", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token.Token)

	_, wrongPass := f.auth.Login(ctx, "a@x.com", "nope123")
	_, unknown := f.auth.Login(ctx, "b@x.com", "secret1")
	requireClass(t, &ErrUnauthorized, wrongPass)
	requireClass(t, &ErrUnauthorized, unknown)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestForgotPasswordUnknownEmailIsNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.auth.ForgotPassword(context.Background(), "ghost@x.com")
	requireClass(t, &ErrNotFound, err)
}

func TestForgotPasswordClearsCodeWhenMailFails(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@x.com")
	f.mailer.err = errBoom

	err := f.auth.ForgotPassword(context.Background(), "a@x.com")
	requireClass(t, &ErrMailDelivery, err)

	stored, err := f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResetCode)
	assert.Nil(t, stored.ResetCodeExpiresAt)
}

func TestResetPasswordWithCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "a@x.com")

	require.NoError(t, f.auth.ForgotPassword(ctx, "a@x.com"))
	stored, err := f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	code := stored.ResetCode
	require.Len(t, code, 6)
	assert.Contains(t, f.mailer.sent[len(f.mailer.sent)-1].HTML, code)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	requireClass(t, &ErrValidation, f.auth.ResetPassword(ctx, "a@x.com", wrong, "newpass1"))
	requireClass(t, &ErrValidation, f.auth.ResetPassword(ctx, "ghost@x.com", code, "newpass1"))
	requireClass(t, &ErrValidation, f.auth.ResetPassword(ctx, "a@x.com", code, "short"))

	require.NoError(t, f.auth.ResetPassword(ctx, "a@x.com", code, "newpass1"))
	_, err = f.auth.Login(ctx, "a@x.com", "newpass1")
	require.NoError(t, err)

	// The code is single use.
	requireClass(t, &ErrValidation, f.auth.ResetPassword(ctx, "a@x.com", code, "newpass2"))
}

func TestResetPasswordExpiredCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "a@x.com")
	require.NoError(t, f.auth.ForgotPassword(ctx, "a@x.com"))
	stored, err := f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)

	f.auth.now = func() time.Time { return time.Now().Add(ResetCodeTTL + time.Minute) }
	err = f.auth.ResetPassword(ctx, "a@x.com", stored.ResetCode, "newpass1")
	requireClass(t, &ErrValidation, err)
	assert.Equal(t, "invalid or expired reset code", Message(err))
}

func TestSecurityAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com")

	require.NoError(t, f.auth.VerifySecurityAnswers(ctx, "a@x.com", []string{"  PARIS ", "rex", "blue"}))

	mismatch := f.auth.VerifySecurityAnswers(ctx, "a@x.com", []string{"paris", "rex", "green"})
	unknown := f.auth.VerifySecurityAnswers(ctx, "ghost@x.com", []string{"paris", "rex", "blue"})
	short := f.auth.VerifySecurityAnswers(ctx, "a@x.com", []string{"paris", "rex"})
	for _, err := range []error{mismatch, unknown, short} {
		requireClass(t, &ErrValidation, err)
		assert.Equal(t, mismatch.Error(), err.Error())
	}

	err := f.auth.ResetPasswordWithSecurityAnswers(ctx, "a@x.com", []string{"x", "rex", "blue"}, "newpass1")
	requireClass(t, &ErrValidation, err)

	require.NoError(t, f.auth.ResetPasswordWithSecurityAnswers(ctx, "a@x.com", []string{"Paris", "Rex", "Blue"}, "newpass1"))
	_, err = f.auth.Login(ctx, "a@x.com", "newpass1")
	require.NoError(t, err)
}

func TestUpdatePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "a@x.com")

	err := f.auth.UpdatePassword(ctx, u.ID, "wrong11", "newpass1")
	requireClass(t, &ErrValidation, err)
	assert.Equal(t, "current password is incorrect", Message(err))

	require.NoError(t, f.auth.UpdatePassword(ctx, u.ID, "secret1", "newpass1"))
	_, err = f.auth.Login(ctx, "a@x.com", "secret1")
	requireClass(t, &ErrUnauthorized, err)
}

func TestMeUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Me(context.Background(), 42)
	requireClass(t, &ErrNotFound, err)
}
