package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/storage"
	"github.com/iliyamo/book-exchange/internal/utils"
)

// ProfileService manages the signed-in user's own account.
type ProfileService struct {
	users     UserStore
	books     BookStore
	exchanges ExchangeStore
	images    storage.ImageStore
	log       *zap.Logger
	validate  *validator.Validate
}

// NewProfileService wires a ProfileService.
func NewProfileService(users UserStore, books BookStore, exchanges ExchangeStore, images storage.ImageStore, log *zap.Logger) *ProfileService {
	return &ProfileService{
		users:     users,
		books:     books,
		exchanges: exchanges,
		images:    images,
		log:       log,
		validate:  newValidator(),
	}
}

// Stats are the dashboard counters of one user.
type Stats struct {
	BooksListed         int64 `json:"booksListed"`
	BooksAvailable      int64 `json:"booksAvailable"`
	RequestsSent        int64 `json:"requestsSent"`
	RequestsReceived    int64 `json:"requestsReceived"`
	ExchangesAccepted   int64 `json:"exchangesAccepted"`
	UnreadConversations int64 `json:"unreadConversations"`
	Reputation          int   `json:"reputation"`
}

// Stats gathers the counters concurrently.
func (s *ProfileService) Stats(ctx context.Context, userID uint64) (Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := getUser(gctx, s.users, userID)
		st.Reputation = u.Reputation
		return err
	})
	g.Go(func() (err error) {
		st.BooksListed, err = s.books.CountByOwner(gctx, userID, "")
		return err
	})
	g.Go(func() (err error) {
		st.BooksAvailable, err = s.books.CountByOwner(gctx, userID, model.BookAvailable)
		return err
	})
	g.Go(func() (err error) {
		st.RequestsSent, err = s.exchanges.Count(gctx, model.ExchangeFilter{RequesterID: userID})
		return err
	})
	g.Go(func() (err error) {
		st.RequestsReceived, err = s.exchanges.Count(gctx, model.ExchangeFilter{OwnerID: userID})
		return err
	})
	g.Go(func() (err error) {
		st.ExchangesAccepted, err = s.exchanges.Count(gctx, model.ExchangeFilter{ParticipantID: userID, Status: model.StatusAccepted})
		return err
	})
	g.Go(func() (err error) {
		st.UnreadConversations, err = s.exchanges.CountUnread(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// ProfileInput carries the optional profile fields.
type ProfileInput struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
	Location *string `json:"location" validate:"omitempty,max=100"`
}

// UpdateProfile changes the given fields and returns the updated user.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (model.User, error) {
	for _, p := range []*string{in.Name, in.Bio, in.Location} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if in.Name != nil && *in.Name == "" {
		return model.User{}, ErrValidation.New("name cannot be empty")
	}
	if err := validate(s.validate, in); err != nil {
		return model.User{}, err
	}
	err := s.users.UpdateProfile(ctx, userID, model.ProfileUpdate{Name: in.Name, Bio: in.Bio, Location: in.Location})
	if err != nil {
		return model.User{}, notFoundUser(err)
	}
	return getUser(ctx, s.users, userID)
}

// UploadImage stores a new profile picture and deletes the previous one
// once the user record points at the new file.
func (s *ProfileService) UploadImage(ctx context.Context, userID uint64, r io.Reader) (model.User, error) {
	u, err := getUser(ctx, s.users, userID)
	if err != nil {
		return model.User{}, err
	}
	path, err := s.images.Save(ctx, r)
	switch {
	case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupportedType):
		return model.User{}, ErrValidation.Wrap(err)
	case err != nil:
		return model.User{}, err
	}
	if err := s.users.SetProfileImage(ctx, userID, path); err != nil {
		s.removeImage(path)
		return model.User{}, notFoundUser(err)
	}
	if u.ProfileImage != "" {
		s.removeImage(u.ProfileImage)
	}
	u.ProfileImage = path
	return u, nil
}

// UpdatePreferences replaces the preferred genres with a trimmed,
// deduplicated set.
func (s *ProfileService) UpdatePreferences(ctx context.Context, userID uint64, genres []string) (model.User, error) {
	genres = model.NormalizeGenres(genres)
	if len(genres) > 50 {
		return model.User{}, ErrValidation.New("at most 50 genres can be preferred")
	}
	if err := s.users.SetPreferences(ctx, userID, genres); err != nil {
		return model.User{}, notFoundUser(err)
	}
	return getUser(ctx, s.users, userID)
}

// DeleteAccount removes the account after checking the password.  Open
// exchanges are cancelled and the user's books deleted with it.
func (s *ProfileService) DeleteAccount(ctx context.Context, userID uint64, password string) error {
	u, err := getUser(ctx, s.users, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return ErrValidation.New("password is incorrect")
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return notFoundUser(err)
	}
	if u.ProfileImage != "" {
		s.removeImage(u.ProfileImage)
	}
	s.log.Info("account deleted", zap.Uint64("user_id", userID))
	return nil
}

func (s *ProfileService) removeImage(path string) {
	if err := s.images.Remove(path); err != nil {
		s.log.Warn("remove profile image", zap.String("path", path), zap.Error(err))
	}
}
