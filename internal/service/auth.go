package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/mail"
	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/repository"
	"github.com/iliyamo/book-exchange/internal/utils"
)

// ResetCodeTTL is how long an emailed reset code stays valid.
const ResetCodeTTL = time.Hour

// AuthConfig holds the credentials settings of AuthService.
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// AuthService registers users, issues tokens and handles password recovery.
type AuthService struct {
	users    UserStore
	mailer   mail.Sender
	cfg      AuthConfig
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewAuthService wires an AuthService.
func NewAuthService(users UserStore, mailer mail.Sender, cfg AuthConfig, log *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		mailer:   mailer,
		cfg:      cfg,
		log:      log,
		validate: newValidator(),
		now:      time.Now,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name            string   `json:"name" validate:"required,max=100"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required,min=6"`
	SecurityAnswers []string `json:"securityAnswers" validate:"len=3,dive,required"`
}

// Session is a signed-in user with their access token.
type Session struct {
	Token utils.AccessToken
	User  model.User
}

var (
	errInvalidCredentials = ErrUnauthorized.New("invalid email or password")
	errInvalidResetCode   = ErrValidation.New("invalid or expired reset code")
	errInvalidAnswers     = ErrValidation.New("security answers do not match")
)

// Register creates an account and signs it in.  The welcome email is best
// effort.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	for i := range in.SecurityAnswers {
		in.SecurityAnswers[i] = strings.TrimSpace(in.SecurityAnswers[i])
	}
	if err := validate(s.validate, in); err != nil {
		return Session{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return Session{}, err
	}
	answers, err := utils.HashAnswers(in.SecurityAnswers, s.cfg.BcryptCost)
	if err != nil {
		return Session{}, err
	}
	u := model.User{
		Email:            in.Email,
		PasswordHash:     hash,
		Name:             in.Name,
		GenrePreferences: []string{},
		SecurityAnswers:  answers,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return Session{}, ErrValidation.New("email is already registered")
		}
		return Session{}, err
	}

	if msg, err := mail.Welcome(u.Email, u.Name); err != nil {
		s.log.Warn("render welcome email", zap.Error(err))
	} else if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn("send welcome email", zap.Uint64("user_id", u.ID), zap.Error(err))
	}

	return s.session(u)
}

// Login checks the credentials.  Unknown email and wrong password fail
// with the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, errInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, errInvalidCredentials
	}
	return s.session(u)
}

// Me returns the account behind an authenticated request.
func (s *AuthService) Me(ctx context.Context, userID uint64) (model.User, error) {
	return getUser(ctx, s.users, userID)
}

// ForgotPassword emails a one-time reset code.  An unknown email is
// reported as not found.  If the email cannot be sent the stored code is
// cleared again.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound.New("no account with that email")
	}
	if err != nil {
		return err
	}

	code, err := utils.NewOTP()
	if err != nil {
		return err
	}
	if err := s.users.SetResetCode(ctx, u.ID, code, s.now().Add(ResetCodeTTL)); err != nil {
		return err
	}

	msg, err := mail.ResetCode(u.Email, u.Name, code, int(ResetCodeTTL/time.Minute))
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.Error("send reset code", zap.Uint64("user_id", u.ID), zap.Error(err))
		if cerr := s.users.ClearResetCode(ctx, u.ID); cerr != nil {
			s.log.Error("clear reset code", zap.Uint64("user_id", u.ID), zap.Error(cerr))
		}
		return ErrMailDelivery.New("could not send the reset email, try again later")
	}
	return nil
}

// ResetPassword sets a new password if code is the user's current,
// unexpired reset code.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return errInvalidResetCode
	}
	if err != nil {
		return err
	}
	if !u.ResetCodeValid(strings.TrimSpace(code), s.now()) {
		return errInvalidResetCode
	}
	return s.setPassword(ctx, u.ID, newPassword)
}

// VerifySecurityAnswers succeeds only if all answers match, compared
// after trimming and lower-casing.
func (s *AuthService) VerifySecurityAnswers(ctx context.Context, email string, answers []string) error {
	_, err := s.userByAnswers(ctx, email, answers)
	return err
}

// ResetPasswordWithSecurityAnswers sets a new password for a user who
// answered all recovery questions.
func (s *AuthService) ResetPasswordWithSecurityAnswers(ctx context.Context, email string, answers []string, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.userByAnswers(ctx, email, answers)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, newPassword)
}

// UpdatePassword changes the password of a signed-in user.  A wrong
// current password is a validation failure, not an authentication one, so
// the client keeps its session.
func (s *AuthService) UpdatePassword(ctx context.Context, userID uint64, current, next string) error {
	if err := s.checkPassword(next); err != nil {
		return err
	}
	u, err := getUser(ctx, s.users, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return ErrValidation.New("current password is incorrect")
	}
	return s.setPassword(ctx, u.ID, next)
}

func (s *AuthService) userByAnswers(ctx context.Context, email string, answers []string) (model.User, error) {
	if len(answers) != model.SecurityAnswerCount {
		return model.User{}, errInvalidAnswers
	}
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, errInvalidAnswers
	}
	if err != nil {
		return model.User{}, err
	}
	if !utils.VerifyAnswers(u.SecurityAnswers, answers) {
		return model.User{}, errInvalidAnswers
	}
	return u, nil
}

func (s *AuthService) checkPassword(p string) error {
	return validate(s.validate, struct {
		Password string `json:"newPassword" validate:"required,min=6"`
	}{p})
}

func (s *AuthService) setPassword(ctx context.Context, userID uint64, plain string) error {
	hash, err := utils.HashPassword(plain, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *AuthService) session(u model.User) (Session, error) {
	tok, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: tok, User: u}, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func getUser(ctx context.Context, users UserStore, id uint64) (model.User, error) {
	u, err := users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, notFoundUser(err)
	}
	return u, nil
}

func notFoundUser(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound.New("user not found")
	}
	return err
}
