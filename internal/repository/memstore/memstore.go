// Package memstore keeps users, books and exchanges in process memory.  It
// honours the same contracts as the MySQL repositories, including the
// conditional book claim and the guarded status update, and backs the
// `STORE_DRIVER=memory` mode as well as the service and handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/book-exchange/internal/model"
	"github.com/iliyamo/book-exchange/internal/repository"
)

// Store is the shared state behind the three store views.
type Store struct {
	mu        sync.Mutex
	nextID    uint64
	users     map[uint64]*model.User
	books     map[uint64]*model.Book
	exchanges map[uint64]*model.Exchange
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:     map[uint64]*model.User{},
		books:     map[uint64]*model.Book{},
		exchanges: map[uint64]*model.Exchange{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the user store view.
func (s *Store) Users() *Users { return &Users{s} }

// Books returns the book store view.
func (s *Store) Books() *Books { return &Books{s} }

// Exchanges returns the exchange store view.
func (s *Store) Exchanges() *Exchanges { return &Exchanges{s} }

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Store) name(id uint64) string {
	if u, ok := s.users[id]; ok {
		return u.Name
	}
	return ""
}

// Users implements the user store over a Store.
type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	now := r.s.now()
	u.ID = r.s.id()
	u.CreatedAt, u.UpdatedAt = now, now
	c := copyUser(*u)
	r.s.users[u.ID] = &c
	return nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return copyUser(*u), nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (r *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return copyUser(*u), nil
}

func (r *Users) SetResetCode(_ context.Context, id uint64, code string, expires time.Time) error {
	return r.update(id, func(u *model.User) {
		exp := expires.UTC()
		u.ResetCode, u.ResetCodeExpiresAt = code, &exp
	})
}

func (r *Users) ClearResetCode(_ context.Context, id uint64) error {
	return r.update(id, func(u *model.User) { u.ResetCode, u.ResetCodeExpiresAt = "", nil })
}

func (r *Users) UpdatePassword(_ context.Context, id uint64, hash string) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.ResetCode, u.ResetCodeExpiresAt = "", nil
	})
}

func (r *Users) UpdateProfile(_ context.Context, id uint64, p model.ProfileUpdate) error {
	return r.update(id, func(u *model.User) {
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.Bio != nil {
			u.Bio = *p.Bio
		}
		if p.Location != nil {
			u.Location = *p.Location
		}
	})
}

func (r *Users) SetProfileImage(_ context.Context, id uint64, path string) error {
	return r.update(id, func(u *model.User) { u.ProfileImage = path })
}

func (r *Users) SetPreferences(_ context.Context, id uint64, genres []string) error {
	return r.update(id, func(u *model.User) { u.GenrePreferences = append([]string{}, genres...) })
}

// Delete cancels the user's open exchanges, removes their books and the
// account, like the MySQL repository's transaction.
func (r *Users) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	now := r.s.now()
	for _, ex := range r.s.exchanges {
		if ex.RequesterID != id && ex.OwnerID != id {
			continue
		}
		if ex.Status != model.StatusPending && ex.Status != model.StatusAccepted {
			continue
		}
		if ex.RequesterID == id {
			if b, ok := r.s.books[ex.BookID]; ok {
				b.Status, b.UpdatedAt = model.BookAvailable, now
			}
		}
		ex.Status, ex.LastModifiedBy, ex.UpdatedAt = model.StatusCancelled, id, now
	}
	for bid, b := range r.s.books {
		if b.OwnerID == id {
			delete(r.s.books, bid)
		}
	}
	delete(r.s.users, id)
	return nil
}

func (r *Users) update(id uint64, fn func(*model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = r.s.now()
	return nil
}

func copyUser(u model.User) model.User {
	u.GenrePreferences = append([]string(nil), u.GenrePreferences...)
	u.SecurityAnswers = append([]string(nil), u.SecurityAnswers...)
	if u.ResetCodeExpiresAt != nil {
		t := *u.ResetCodeExpiresAt
		u.ResetCodeExpiresAt = &t
	}
	return u
}

// Books implements the book store over a Store.
type Books struct{ s *Store }

func (r *Books) Create(_ context.Context, b *model.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	b.ID = r.s.id()
	b.Status = model.BookAvailable
	b.CreatedAt, b.UpdatedAt = now, now
	c := *b
	r.s.books[b.ID] = &c
	return nil
}

func (r *Books) GetByID(_ context.Context, id uint64) (model.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[id]
	if !ok {
		return model.Book{}, repository.ErrNotFound
	}
	return r.view(b), nil
}

func (r *Books) Update(_ context.Context, b *model.Book) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.books[b.ID]
	if !ok || cur.OwnerID != b.OwnerID {
		return repository.ErrNotFound
	}
	cur.Title, cur.Author, cur.Genre = b.Title, b.Author, b.Genre
	cur.Description, cur.Condition, cur.Location = b.Description, b.Condition, b.Location
	cur.UpdatedAt = r.s.now()
	b.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *Books) Delete(_ context.Context, id, ownerID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[id]
	if !ok || b.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(r.s.books, id)
	return nil
}

func (r *Books) ListByOwner(_ context.Context, ownerID uint64) ([]model.Book, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.Book{}
	for _, b := range r.s.books {
		if b.OwnerID == ownerID {
			out = append(out, r.view(b))
		}
	}
	sortNewest(out)
	return out, nil
}

func (r *Books) CountByOwner(_ context.Context, ownerID uint64, status model.BookStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, b := range r.s.books {
		if b.OwnerID == ownerID && (status == "" || b.Status == status) {
			n++
		}
	}
	return n, nil
}

func (r *Books) Search(_ context.Context, q model.BookQuery) ([]model.Book, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search := strings.ToLower(q.Search)
	matched := []model.Book{}
	for _, b := range r.s.books {
		if b.Status != model.BookAvailable {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Title), search) &&
			!strings.Contains(strings.ToLower(b.Author), search) {
			continue
		}
		if q.Genre != "" && b.Genre != q.Genre {
			continue
		}
		if q.Condition != "" && b.Condition != q.Condition {
			continue
		}
		if q.Location != "" && b.Location != q.Location {
			continue
		}
		matched = append(matched, r.view(b))
	}
	switch q.SortBy {
	case model.SortOldest:
		sort.Slice(matched, func(i, j int) bool { return !newer(matched[i], matched[j]) })
	case model.SortTitle:
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Title != matched[j].Title {
				return matched[i].Title < matched[j].Title
			}
			return matched[i].ID < matched[j].ID
		})
	case model.SortRecommended:
		sortNewest(matched)
		model.RankRecommended(matched, q.PreferredGenres)
	default:
		sortNewest(matched)
	}
	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return append([]model.Book{}, matched[start:end]...), total, nil
}

func (r *Books) view(b *model.Book) model.Book {
	c := *b
	c.OwnerName = r.s.name(b.OwnerID)
	return c
}

func newer(a, b model.Book) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortNewest(books []model.Book) {
	sort.Slice(books, func(i, j int) bool { return newer(books[i], books[j]) })
}
