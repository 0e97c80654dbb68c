package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists assets in PostgreSQL. Every read recomputes is_complete in
// the database from CompletenessSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new asset store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// selectSQL is the column list of every asset read
var selectSQL = func() string {
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, f.name)
	}
	cols = append(cols, "deleted_at", CompletenessSQL()+" AS is_complete")
	return "SELECT " + strings.Join(cols, ", ") + " FROM assets"
}()

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	a := &Asset{}
	dest := make([]interface{}, 0, len(fields)+2)
	texts := make(map[string]*sql.NullString)
	nullBools := make(map[string]*sql.NullBool)

	for i := range fields {
		f := &fields[i]
		switch f.kind {
		case kindUUID:
			dest = append(dest, &a.ID)
		case kindTime:
			if f.name == "created_at" {
				dest = append(dest, &a.CreatedAt)
			} else {
				dest = append(dest, &a.UpdatedAt)
			}
		case kindText:
			ns := &sql.NullString{}
			texts[f.name] = ns
			dest = append(dest, ns)
		case kindBool:
			dest = append(dest, f.flag(a))
		case kindNullBool:
			nb := &sql.NullBool{}
			nullBools[f.name] = nb
			dest = append(dest, nb)
		case kindSet:
			dest = append(dest, pq.Array(f.set(a)))
		}
	}

	var deletedAt sql.NullTime
	dest = append(dest, &deletedAt, &a.IsComplete)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for name, ns := range texts {
		if ns.Valid {
			s := ns.String
			*lookupField(name).text(a) = &s
		}
	}
	for name, nb := range nullBools {
		if nb.Valid {
			b := nb.Bool
			*lookupField(name).nullFlag(a) = &b
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	a.normalizeSets()
	return a, nil
}

// writeArgs returns the writable column names and their values
func writeArgs(a *Asset) ([]string, []interface{}) {
	wf := writableFields()
	cols := make([]string, 0, len(wf))
	args := make([]interface{}, 0, len(wf))
	for _, f := range wf {
		cols = append(cols, f.name)
		switch f.kind {
		case kindText:
			args = append(args, nullString(*f.text(a)))
		case kindBool:
			args = append(args, *f.flag(a))
		case kindNullBool:
			args = append(args, nullBool(*f.nullFlag(a)))
		case kindSet:
			set := *f.set(a)
			if set == nil {
				set = []string{}
			}
			args = append(args, pq.Array(set))
		}
	}
	return cols, args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// Create inserts a new asset with a fresh id and timestamps and returns it
// as stored
func (s *Store) Create(ctx context.Context, a *Asset) (*Asset, error) {
	id := uuid.New()
	now := s.now()

	cols, args := writeArgs(a)
	cols = append([]string{"id"}, cols...)
	args = append([]interface{}{id}, args...)
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO assets (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	return s.Get(ctx, id, Visibility{All: true})
}

// Get returns an active asset visible under v, or ErrNotFound
func (s *Store) Get(ctx context.Context, id uuid.UUID, v Visibility) (*Asset, error) {
	if v.Empty() {
		return nil, ErrNotFound
	}

	b := &sqlBuilder{}
	b.and("id = " + b.arg(id))
	b.visible(v)

	a, err := scanAsset(s.db.QueryRowContext(ctx, selectSQL+b.whereSQL(), b.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// Update writes every writable field of a and bumps updated_at. The asset
// is reloaded so the result carries the recomputed is_complete.
func (s *Store) Update(ctx context.Context, a *Asset) (*Asset, error) {
	cols, args := writeArgs(a)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args = append(args, s.now(), a.ID)
	query := fmt.Sprintf("UPDATE assets SET %s, updated_at = $%d WHERE id = $%d AND deleted_at IS NULL",
		strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update asset: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to update asset: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return s.Get(ctx, a.ID, Visibility{All: true})
}

// SoftDelete marks an active asset deleted. Deleting an asset twice leaves
// the first deleted_at in place and returns ErrNotFound.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of the active assets visible under v
func (s *Store) List(ctx context.Context, q ListQuery, v Visibility) (*Page, error) {
	page := &Page{Results: []*Asset{}}
	if v.Empty() {
		return page, nil
	}

	b := &sqlBuilder{}
	b.visible(v)
	if err := b.filters(q.Filters); err != nil {
		return nil, err
	}
	if q.Search != "" {
		b.search(q.Search)
	}
	if q.IsComplete != nil {
		b.and(fmt.Sprintf("%s = %s", CompletenessSQL(), b.arg(*q.IsComplete)))
	}

	orderBy, err := orderBySQL(q.Ordering)
	if err != nil {
		return nil, err
	}

	size := q.PageSize
	if size <= 0 {
		size = 25
	}
	// one extra row tells us whether there is a next page
	query := selectSQL + b.whereSQL() + orderBy +
		fmt.Sprintf(" LIMIT %s OFFSET %s", b.arg(size+1), b.arg(q.Offset))

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		page.Results = append(page.Results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	if len(page.Results) > size {
		page.Results = page.Results[:size]
		page.Next = EncodeCursor(q.Offset + size)
	}
	if q.Offset > 0 {
		prev := q.Offset - size
		if prev < 0 {
			prev = 0
		}
		page.Previous = EncodeCursor(prev)
	}
	return page, nil
}

// Stats counts active assets overall and by department. Assets without a
// department only count towards the overall figures.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`
		SELECT department,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_complete),
			COUNT(*) FILTER (WHERE personal_data)
		FROM (
			SELECT department, personal_data, %s AS is_complete
			FROM assets
			WHERE deleted_at IS NULL
		) active
		GROUP BY department
	`, CompletenessSQL())

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByInstitution: make(map[string]Counts)}
	for rows.Next() {
		var dept sql.NullString
		var c Counts
		if err := rows.Scan(&dept, &c.Total, &c.Completed, &c.WithPersonalData); err != nil {
			return nil, fmt.Errorf("failed to scan asset stats: %w", err)
		}
		stats.All.add(c)
		if dept.Valid && dept.String != "" {
			d := stats.ByInstitution[dept.String]
			d.add(c)
			stats.ByInstitution[dept.String] = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset stats: %w", err)
	}
	return stats, nil
}
