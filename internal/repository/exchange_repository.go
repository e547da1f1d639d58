package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/book-exchange/internal/model"
)

// ExchangeRepo persists exchange requests in `exchanges` and their
// conversations in `exchange_messages`.  Every write that also touches the
// book runs in one SQL transaction with a conditional update, so the
// status of an exchange and of its book cannot drift apart.
type ExchangeRepo struct{ db *sql.DB }

func NewExchangeRepo(db *sql.DB) *ExchangeRepo { return &ExchangeRepo{db: db} }

const exchangeSelect = `SELECT e.id, e.book_id, e.requester_id, e.owner_id, e.status,
	e.delivery_method, e.duration_days, e.meeting_location, e.notes, e.last_modified_by,
	e.created_at, e.updated_at, b.id, b.title, b.author, b.status,
	COALESCE(ru.name, ''), COALESCE(ou.name, '')
	FROM exchanges e
	LEFT JOIN books b  ON b.id = e.book_id
	LEFT JOIN users ru ON ru.id = e.requester_id
	LEFT JOIN users ou ON ou.id = e.owner_id`

// Create claims the book and inserts ex with its initial messages.  If the
// book is no longer available nothing is written and ErrBookUnavailable is
// returned.
func (r *ExchangeRepo) Create(ctx context.Context, ex *model.Exchange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := claimTx(ctx, tx, ex.BookID); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO exchanges (book_id, requester_id, owner_id, status, delivery_method,
			duration_days, meeting_location, notes, last_modified_by, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ex.BookID, ex.RequesterID, ex.OwnerID, ex.Status, ex.Terms.DeliveryMethod,
		ex.Terms.DurationDays, ex.Terms.MeetingLocation, ex.Terms.Notes, ex.LastModifiedBy, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ex.ID = uint64(id)
	ex.CreatedAt, ex.UpdatedAt = now, now
	for i := range ex.Messages {
		ex.Messages[i].ExchangeID = ex.ID
		if err := insertMessageTx(ctx, tx, &ex.Messages[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID loads an exchange with its messages, book summary and party
// names.
func (r *ExchangeRepo) GetByID(ctx context.Context, id uint64) (model.Exchange, error) {
	ex, err := scanExchange(r.db.QueryRowContext(ctx, exchangeSelect+" WHERE e.id=? LIMIT 1", id))
	if err != nil {
		return model.Exchange{}, err
	}
	msgs, err := r.messages(ctx, []uint64{id})
	if err != nil {
		return model.Exchange{}, err
	}
	ex.Messages = nonNilMessages(msgs[id])
	return ex, nil
}

// ApplyStatus moves exchange id from `from` to `to`, appends msg and sets
// the book's status, all in one transaction.  ErrStaleStatus is returned
// when the exchange is no longer in `from`.
func (r *ExchangeRepo) ApplyStatus(ctx context.Context, id uint64, from, to model.ExchangeStatus, actor uint64, msg *model.Message, book model.BookStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var bookID uint64
	if err := tx.QueryRowContext(ctx, "SELECT book_id FROM exchanges WHERE id=?", id).Scan(&bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE exchanges SET status=?, last_modified_by=?, updated_at=? WHERE id=? AND status=?",
		to, actor, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	if msg != nil {
		msg.ExchangeID = id
		if err := insertMessageTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	if book != "" {
		if err := setStatusTx(ctx, tx, bookID, book); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AppendMessage adds msg to its exchange's conversation.
func (r *ExchangeRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, "UPDATE exchanges SET updated_at=? WHERE id=?", time.Now().UTC(), msg.ExchangeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := insertMessageTx(ctx, tx, msg); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// MarkRead flags every message of the exchange not sent by readerID as
// read.
func (r *ExchangeRepo) MarkRead(ctx context.Context, exchangeID, readerID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE exchange_messages SET is_read=1 WHERE exchange_id=? AND sender_id<>? AND is_read=0",
		exchangeID, readerID)
	return err
}

// List returns the exchanges matching f, most recently updated first, with
// their messages.
func (r *ExchangeRepo) List(ctx context.Context, f model.ExchangeFilter) ([]model.Exchange, error) {
	cond, args := exchangeWhere(f)
	rows, err := r.db.QueryContext(ctx, exchangeSelect+" WHERE "+cond+" ORDER BY e.updated_at DESC, e.id DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Exchange{}
	ids := []uint64{}
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
		ids = append(ids, ex.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	msgs, err := r.messages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Messages = nonNilMessages(msgs[out[i].ID])
	}
	return out, nil
}

// Count returns the number of exchanges matching f.
func (r *ExchangeRepo) Count(ctx context.Context, f model.ExchangeFilter) (int64, error) {
	cond, args := exchangeWhere(f)
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM exchanges e WHERE "+cond, args...).Scan(&n)
	return n, err
}

// CountUnread returns how many of userID's exchanges hold at least one
// unread message from the other party.
func (r *ExchangeRepo) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT e.id) FROM exchanges e
		 JOIN exchange_messages m ON m.exchange_id = e.id
		 WHERE (e.requester_id=? OR e.owner_id=?) AND m.is_read=0 AND m.sender_id<>?`,
		userID, userID, userID).Scan(&n)
	return n, err
}

func (r *ExchangeRepo) messages(ctx context.Context, ids []uint64) (map[uint64][]model.Message, error) {
	out := make(map[uint64][]model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.exchange_id, m.sender_id, COALESCE(u.name, ''), m.content, m.is_system,
			m.is_read, m.notified, m.created_at
		 FROM exchange_messages m LEFT JOIN users u ON u.id = m.sender_id
		 WHERE m.exchange_id IN (`+placeholders(len(ids))+`) ORDER BY m.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ExchangeID, &m.SenderID, &m.SenderName, &m.Content,
			&m.System, &m.Read, &m.Notified, &m.CreatedAt); err != nil {
			return nil, err
		}
		out[m.ExchangeID] = append(out[m.ExchangeID], m)
	}
	return out, rows.Err()
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO exchange_messages (exchange_id, sender_id, content, is_system, is_read, notified, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		m.ExchangeID, m.SenderID, m.Content, m.System, m.Read, m.Notified, m.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

func exchangeWhere(f model.ExchangeFilter) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	if f.RequesterID != 0 {
		where = append(where, "e.requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.OwnerID != 0 {
		where = append(where, "e.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.ParticipantID != 0 {
		where = append(where, "(e.requester_id = ? OR e.owner_id = ?)")
		args = append(args, f.ParticipantID, f.ParticipantID)
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, f.Status)
	}
	return strings.Join(where, " AND "), args
}

func scanExchange(row rowScanner) (model.Exchange, error) {
	var (
		ex         model.Exchange
		bookID     sql.NullInt64
		bookTitle  sql.NullString
		bookAuthor sql.NullString
		bookStatus sql.NullString
	)
	err := row.Scan(&ex.ID, &ex.BookID, &ex.RequesterID, &ex.OwnerID, &ex.Status,
		&ex.Terms.DeliveryMethod, &ex.Terms.DurationDays, &ex.Terms.MeetingLocation, &ex.Terms.Notes,
		&ex.LastModifiedBy, &ex.CreatedAt, &ex.UpdatedAt,
		&bookID, &bookTitle, &bookAuthor, &bookStatus, &ex.RequesterName, &ex.OwnerName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exchange{}, ErrNotFound
	}
	if err != nil {
		return model.Exchange{}, err
	}
	if bookID.Valid {
		ex.Book = &model.BookSummary{
			ID:     uint64(bookID.Int64),
			Title:  bookTitle.String,
			Author: bookAuthor.String,
			Status: model.BookStatus(bookStatus.String),
		}
	}
	return ex, nil
}

func nonNilMessages(m []model.Message) []model.Message {
	if m == nil {
		return []model.Message{}
	}
	return m
}
