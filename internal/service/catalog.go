package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/repository"
)

// CatalogService manages book listings.
type CatalogService struct {
	books    BookStore
	users    UserStore
	log      *zap.Logger
	validate *validator.Validate
}

// NewCatalogService wires a CatalogService.
func NewCatalogService(books BookStore, users UserStore, log *zap.Logger) *CatalogService {
	return &CatalogService{books: books, users: users, log: log, validate: newValidator()}
}

// BookInput is the listing form.
type BookInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=200"`
	Genre       string `json:"genre" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	Condition   string `json:"condition" validate:"required"`
	Location    string `json:"location" validate:"required"`
}

func (in *BookInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Description = strings.TrimSpace(in.Description)
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// BookPage is one page of the public catalog.
type BookPage struct {
	Books      []model.Book `json:"books"`
	Pagination Pagination   `json:"pagination"`
}

// List returns a page of available books.  viewerID is 0 for anonymous
// callers; it is used only by the recommended sort.  Unknown condition,
// location and sort values are ignored.
func (s *CatalogService) List(ctx context.Context, viewerID uint64, q model.BookQuery) (BookPage, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Genre = strings.TrimSpace(q.Genre)
	if !model.ValidCondition(q.Condition) {
		q.Condition = ""
	}
	if !model.ValidLocation(q.Location) {
		q.Location = ""
	}
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = model.BookPageSize
	q.PreferredGenres = nil

	switch q.SortBy {
	case model.SortOldest, model.SortTitle:
	case model.SortRecommended:
		if viewerID != 0 {
			u, err := s.users.GetByID(ctx, viewerID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return BookPage{}, err
			}
			q.PreferredGenres = u.GenrePreferences
		}
		if len(q.PreferredGenres) == 0 {
			q.SortBy = model.SortNewest
		}
	default:
		q.SortBy = model.SortNewest
	}

	books, total, err := s.books.Search(ctx, q)
	if err != nil {
		return BookPage{}, err
	}
	pages := (total + int64(q.PageSize) - 1) / int64(q.PageSize)
	return BookPage{
		Books: books,
		Pagination: Pagination{
			Page:       q.Page,
			PageSize:   q.PageSize,
			Total:      total,
			TotalPages: pages,
		},
	}, nil
}

// ListOwn returns all of the owner's books, newest first.
func (s *CatalogService) ListOwn(ctx context.Context, ownerID uint64) ([]model.Book, error) {
	return s.books.ListByOwner(ctx, ownerID)
}

// Get returns one book.
func (s *CatalogService) Get(ctx context.Context, id uint64) (model.Book, error) {
	b, err := s.books.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Book{}, ErrNotFound.New("book not found")
	}
	return b, err
}

// Create lists a new available book owned by ownerID.
func (s *CatalogService) Create(ctx context.Context, ownerID uint64, in BookInput) (model.Book, error) {
	in.trim()
	if err := validate(s.validate, in); err != nil {
		return model.Book{}, err
	}
	b := model.Book{
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		Description: in.Description,
		Condition:   in.Condition,
		Location:    in.Location,
		OwnerID:     ownerID,
	}
	if err := checkEnums(b); err != nil {
		return model.Book{}, err
	}
	if err := s.books.Create(ctx, &b); err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book listed", zap.Uint64("book_id", b.ID), zap.Uint64("owner_id", ownerID))
	return s.Get(ctx, b.ID)
}

// Update applies an owner's partial edit.
func (s *CatalogService) Update(ctx context.Context, userID, id uint64, u model.BookUpdate) (model.Book, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	if b.OwnerID != userID {
		return model.Book{}, ErrForbidden.New("you can only edit your own books")
	}
	for _, p := range []*string{u.Title, u.Author, u.Genre, u.Description} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	u.Apply(&b)
	in := BookInput{
		Title:       b.Title,
		Author:      b.Author,
		Genre:       b.Genre,
		Description: b.Description,
		Condition:   b.Condition,
		Location:    b.Location,
	}
	if err := validate(s.validate, in); err != nil {
		return model.Book{}, err
	}
	if err := checkEnums(b); err != nil {
		return model.Book{}, err
	}
	if err := s.books.Update(ctx, &b); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Book{}, ErrNotFound.New("book not found")
		}
		return model.Book{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes an owner's book.  Books that do not exist or belong to
// someone else are reported as not found.
func (s *CatalogService) Delete(ctx context.Context, userID, id uint64) error {
	err := s.books.Delete(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound.New("book not found")
	}
	return err
}

func checkEnums(b model.Book) error {
	if !model.ValidCondition(b.Condition) {
		return ErrValidation.New("condition must be one of %s", strings.Join(model.Conditions, ", "))
	}
	if !model.ValidLocation(b.Location) {
		return ErrValidation.New("location must be one of %s", strings.Join(model.Locations, ", "))
	}
	return nil
}
