package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/book-exchange/internal/model"
)

// BookRepo persists listings in the `books` table.
type BookRepo struct{ db *sql.DB }

func NewBookRepo(db *sql.DB) *BookRepo { return &BookRepo{db: db} }

const bookSelect = `SELECT b.id, b.title, b.author, b.genre, b.description, b.` + "`condition`" + `,
	b.location, b.status, b.owner_id, COALESCE(u.name, ''), b.created_at, b.updated_at
	FROM books b LEFT JOIN users u ON u.id = b.owner_id`

// Create inserts b with status available and fills in ID and timestamps.
func (r *BookRepo) Create(ctx context.Context, b *model.Book) error {
	now := time.Now().UTC()
	b.Status = model.BookAvailable
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO books (title, author, genre, description, `condition`, location, status, owner_id, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)",
		b.Title, b.Author, b.Genre, b.Description, b.Condition, b.Location, b.Status, b.OwnerID, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// GetByID fetches a book with its owner's name.
func (r *BookRepo) GetByID(ctx context.Context, id uint64) (model.Book, error) {
	return scanBook(r.db.QueryRowContext(ctx, bookSelect+" WHERE b.id=? LIMIT 1", id))
}

// Update writes the owner-editable fields of b.  Status and owner are left
// alone.
func (r *BookRepo) Update(ctx context.Context, b *model.Book) error {
	b.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"UPDATE books SET title=?, author=?, genre=?, description=?, `condition`=?, location=?, updated_at=? WHERE id=? AND owner_id=?",
		b.Title, b.Author, b.Genre, b.Description, b.Condition, b.Location, b.UpdatedAt, b.ID, b.OwnerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the book only when ownerID owns it.
func (r *BookRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM books WHERE id=? AND owner_id=?", id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns every book of ownerID, newest first.
func (r *BookRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Book, error) {
	rows, err := r.db.QueryContext(ctx, bookSelect+" WHERE b.owner_id=? ORDER BY b.created_at DESC, b.id DESC", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountByOwner counts ownerID's books, optionally restricted to status.
func (r *BookRepo) CountByOwner(ctx context.Context, ownerID uint64, status model.BookStatus) (int64, error) {
	q := "SELECT COUNT(*) FROM books WHERE owner_id=?"
	args := []any{ownerID}
	if status != "" {
		q += " AND status=?"
		args = append(args, status)
	}
	var n int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// claimTx flips a book from available to pending inside tx.  It fails with
// ErrBookUnavailable when the book is missing or no longer available, which
// closes the race between two concurrent requests for the same book.
func claimTx(ctx context.Context, tx *sql.Tx, bookID uint64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE books SET status=?, updated_at=? WHERE id=? AND status=?",
		model.BookPending, time.Now().UTC(), bookID, model.BookAvailable)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookUnavailable
	}
	return nil
}

// setStatusTx sets a book's status inside tx.  A deleted book is not an
// error.
func setStatusTx(ctx context.Context, tx *sql.Tx, bookID uint64, status model.BookStatus) error {
	_, err := tx.ExecContext(ctx, "UPDATE books SET status=?, updated_at=? WHERE id=?",
		status, time.Now().UTC(), bookID)
	return err
}

func scanBook(row rowScanner) (model.Book, error) {
	var b model.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.Description, &b.Condition,
		&b.Location, &b.Status, &b.OwnerID, &b.OwnerName, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Book{}, ErrNotFound
	}
	return b, err
}
