package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/book-exchange/internal/model"
)

// UserRepo persists accounts in the `users` table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, name, bio, location, profile_image,
	genre_preferences, security_answers, reputation, reset_code, reset_code_expires_at,
	created_at, updated_at`

// Create inserts u and fills in its ID and timestamps.  Email must already
// be normalized.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	prefs, err := json.Marshal(nonNil(u.GenrePreferences))
	if err != nil {
		return err
	}
	answers, err := json.Marshal(nonNil(u.SecurityAnswers))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, name, bio, location, profile_image,
			genre_preferences, security_answers, reputation, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.Email, u.PasswordHash, u.Name, u.Bio, u.Location, u.ProfileImage,
		prefs, answers, u.Reputation, now, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetResetCode stores a password reset code and its expiry.
func (r *UserRepo) SetResetCode(ctx context.Context, id uint64, code string, expires time.Time) error {
	return r.exec(ctx,
		"UPDATE users SET reset_code=?, reset_code_expires_at=?, updated_at=? WHERE id=?",
		code, expires.UTC(), time.Now().UTC(), id)
}

// ClearResetCode removes any pending reset code.
func (r *UserRepo) ClearResetCode(ctx context.Context, id uint64) error {
	return r.exec(ctx,
		"UPDATE users SET reset_code=NULL, reset_code_expires_at=NULL, updated_at=? WHERE id=?",
		time.Now().UTC(), id)
}

// UpdatePassword stores a new hash and clears any pending reset code.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash=?, reset_code=NULL, reset_code_expires_at=NULL, updated_at=?
		 WHERE id=?`,
		hash, time.Now().UTC(), id)
}

// UpdateProfile applies the non-nil fields of p.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, p model.ProfileUpdate) error {
	sets := []string{}
	args := []any{}
	if p.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *p.Name)
	}
	if p.Bio != nil {
		sets = append(sets, "bio=?")
		args = append(args, *p.Bio)
	}
	if p.Location != nil {
		sets = append(sets, "location=?")
		args = append(args, *p.Location)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), id)
	return r.exec(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
}

// SetProfileImage records the relative path of the user's image.
func (r *UserRepo) SetProfileImage(ctx context.Context, id uint64, path string) error {
	return r.exec(ctx, "UPDATE users SET profile_image=?, updated_at=? WHERE id=?",
		path, time.Now().UTC(), id)
}

// SetPreferences replaces the user's genre preferences.
func (r *UserRepo) SetPreferences(ctx context.Context, id uint64, genres []string) error {
	b, err := json.Marshal(nonNil(genres))
	if err != nil {
		return err
	}
	return r.exec(ctx, "UPDATE users SET genre_preferences=?, updated_at=? WHERE id=?",
		b, time.Now().UTC(), id)
}

// Delete removes the account in one transaction: every open exchange the
// user takes part in is cancelled (books owned by others go back to
// available), the user's books are deleted, then the user row.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
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
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE books b JOIN exchanges e ON e.book_id = b.id
		 SET b.status='available', b.updated_at=?
		 WHERE e.requester_id=? AND e.status IN ('pending','accepted')`,
		now, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE exchanges SET status='cancelled', last_modified_by=?, updated_at=?
		 WHERE (requester_id=? OR owner_id=?) AND status IN ('pending','accepted')`,
		id, now, id, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM books WHERE owner_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	// The DSN sets clientFoundRows, so zero means no such row.
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u              model.User
		prefs, answers []byte
		resetCode      sql.NullString
		resetExp       sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.Location,
		&u.ProfileImage, &prefs, &answers, &u.Reputation, &resetCode, &resetExp,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.GenrePreferences); err != nil {
			return model.User{}, err
		}
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &u.SecurityAnswers); err != nil {
			return model.User{}, err
		}
	}
	u.ResetCode = resetCode.String
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetCodeExpiresAt = &t
	}
	return u, nil
}

// isDuplicate reports a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
