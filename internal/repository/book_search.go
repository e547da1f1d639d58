package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/book-exchange/internal/model"
)

// Search returns one page of available books matching q together with the
// total number of matches.
func (r *BookRepo) Search(ctx context.Context, q model.BookQuery) ([]model.Book, int64, error) {
	where := []string{"b.status = ?"}
	args := []any{model.BookAvailable}

	if q.Search != "" {
		where = append(where, "(LOWER(b.title) LIKE ? OR LOWER(b.author) LIKE ?)")
		like := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		args = append(args, like, like)
	}
	if q.Genre != "" {
		where = append(where, "b.genre = ?")
		args = append(args, q.Genre)
	}
	if q.Condition != "" {
		where = append(where, "b.`condition` = ?")
		args = append(args, q.Condition)
	}
	if q.Location != "" {
		where = append(where, "b.location = ?")
		args = append(args, q.Location)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books b WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, orderArgs := orderBy(q)
	dataSQL := bookSelect + " WHERE " + cond + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	argsData := append(append(append([]any{}, args...), orderArgs...), q.PageSize, q.Offset())

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Book, 0, q.PageSize)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// orderBy renders the ORDER BY clause for q.SortBy.  The recommended mode
// puts preferred genres first and falls back to newest-first inside each
// group.
func orderBy(q model.BookQuery) (string, []any) {
	const newest = "b.created_at DESC, b.id DESC"
	switch q.SortBy {
	case model.SortOldest:
		return "b.created_at ASC, b.id ASC", nil
	case model.SortTitle:
		return "b.title ASC, b.id ASC", nil
	case model.SortRecommended:
		if len(q.PreferredGenres) == 0 {
			return newest, nil
		}
		args := make([]any, len(q.PreferredGenres))
		for i, g := range q.PreferredGenres {
			args[i] = strings.ToLower(g)
		}
		return "CASE WHEN LOWER(b.genre) IN (" + placeholders(len(args)) + ") THEN 0 ELSE 1 END, " + newest, args
	}
	return newest, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
