package assets

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DefaultOrdering is applied when a list request names no ordering
const DefaultOrdering = "-created_at"

// Query parameters with a meaning of their own; every other parameter that
// names a queryable field is an equality filter
const (
	ParamSearch     = "search"
	ParamOrdering   = "ordering"
	ParamIsComplete = "is_complete"
	ParamCursor     = "cursor"
)

// ListQuery describes one page of a filtered, searched and ordered listing
type ListQuery struct {
	Filters    map[string]string
	Search     string
	Ordering   []string
	IsComplete *bool
	Offset     int
	PageSize   int
}

// Visibility restricts the assets a requester may see
type Visibility struct {
	// All skips both the group gate and the private record filter. The store
	// uses it to reload its own writes; request paths never set it.
	All bool
	// InGroup is false for requesters outside the register's user group,
	// who see nothing
	InGroup bool
	// Institutions holds the requester's institution codes. Private assets
	// are visible only when their department is one of them.
	Institutions []string
}

// Empty reports whether the visibility admits no assets at all
func (v Visibility) Empty() bool {
	return !v.All && !v.InGroup
}

// Page is one page of a listing. Next and Previous are opaque cursors, empty
// at either end.
type Page struct {
	Next     string
	Previous string
	Results  []*Asset
}

// ParseListQuery reads a listing request from URL query parameters.
// Parameters that are neither reserved nor queryable fields are ignored.
func ParseListQuery(values url.Values, pageSize int) (ListQuery, error) {
	q := ListQuery{
		Filters:  make(map[string]string),
		Search:   strings.TrimSpace(values.Get(ParamSearch)),
		PageSize: pageSize,
	}
	errs := FieldErrors{}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		f := lookupField(key)
		if f == nil || !f.queryable {
			continue
		}
		if _, err := filterArg(f, vals[0]); err != nil {
			errs.Add(key, err.Error())
			continue
		}
		q.Filters[key] = vals[0]
	}

	ordering := values.Get(ParamOrdering)
	if ordering == "" {
		ordering = DefaultOrdering
	}
	for _, term := range strings.Split(ordering, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		f := lookupField(strings.TrimPrefix(term, "-"))
		if f == nil || !f.queryable {
			errs.Add(ParamOrdering, fmt.Sprintf("Cannot order by %q.", term))
			continue
		}
		q.Ordering = append(q.Ordering, term)
	}

	if raw := values.Get(ParamIsComplete); raw != "" {
		b, err := parseBool(raw)
		if err != nil {
			errs.Add(ParamIsComplete, err.Error())
		} else {
			q.IsComplete = &b
		}
	}

	if raw := values.Get(ParamCursor); raw != "" {
		offset, err := DecodeCursor(raw)
		if err != nil {
			errs.Add(ParamCursor, "Invalid cursor.")
		} else {
			q.Offset = offset
		}
	}

	if len(errs) > 0 {
		return ListQuery{}, errs
	}
	return q, nil
}

// EncodeCursor returns the opaque cursor for a listing offset
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o=" + strconv.Itoa(offset)))
}

// DecodeCursor recovers the offset from a cursor made by EncodeCursor
func DecodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	s, ok := strings.CutPrefix(string(raw), "o=")
	if !ok {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(s)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return offset, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a valid boolean.", s)
}

// filterArg converts a query parameter into the SQL argument for an
// equality filter on f
func filterArg(f *field, raw string) (interface{}, error) {
	switch f.kind {
	case kindUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid UUID.", raw)
		}
		return id.String(), nil
	case kindBool, kindNullBool:
		return parseBool(raw)
	case kindTime:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid RFC 3339 timestamp.", raw)
		}
		return t, nil
	}
	return raw, nil
}

// sqlBuilder accumulates a WHERE clause and its positional arguments
type sqlBuilder struct {
	where []string
	args  []interface{}
}

func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) and(clause string) {
	b.where = append(b.where, clause)
}

func (b *sqlBuilder) whereSQL() string {
	return " WHERE " + strings.Join(b.where, " AND ")
}

// visible restricts to active assets the requester may see
func (b *sqlBuilder) visible(v Visibility) {
	b.and("deleted_at IS NULL")
	if !v.All {
		insts := v.Institutions
		if insts == nil {
			insts = []string{}
		}
		b.and(fmt.Sprintf("(private = FALSE OR department = ANY(%s))", b.arg(pq.Array(insts))))
	}
}

func (b *sqlBuilder) filters(filters map[string]string) error {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	// deterministic placeholder numbering
	sort.Strings(names)

	for _, name := range names {
		f := lookupField(name)
		if f == nil || !f.queryable {
			return fmt.Errorf("cannot filter on %q", name)
		}
		v, err := filterArg(f, filters[name])
		if err != nil {
			return err
		}
		switch f.kind {
		case kindSet:
			b.and(fmt.Sprintf("%s = ANY(%s)", b.arg(v), name))
		case kindUUID:
			b.and(fmt.Sprintf("%s::text = %s", name, b.arg(v)))
		default:
			b.and(fmt.Sprintf("%s = %s", name, b.arg(v)))
		}
	}
	return nil
}

// search requires every whitespace separated term to appear, case
// insensitively, in at least one queryable text or set field
func (b *sqlBuilder) search(text string) {
	for _, term := range strings.Fields(text) {
		p := b.arg("%" + escapeLike(term) + "%")
		var ors []string
		for _, f := range fields {
			if !f.queryable {
				continue
			}
			switch f.kind {
			case kindText:
				ors = append(ors, fmt.Sprintf("%s ILIKE %s", f.name, p))
			case kindUUID:
				ors = append(ors, fmt.Sprintf("%s::text ILIKE %s", f.name, p))
			case kindSet:
				ors = append(ors, fmt.Sprintf("array_to_string(%s, ' ') ILIKE %s", f.name, p))
			}
		}
		b.and("(" + strings.Join(ors, " OR ") + ")")
	}
}

func orderBySQL(ordering []string) (string, error) {
	if len(ordering) == 0 {
		ordering = []string{DefaultOrdering}
	}
	terms := make([]string, 0, len(ordering)+1)
	for _, o := range ordering {
		name, desc := strings.CutPrefix(o, "-")
		if f := lookupField(name); f == nil || !f.queryable {
			return "", fmt.Errorf("cannot order by %q", o)
		}
		if desc {
			terms = append(terms, name+" DESC NULLS LAST")
		} else {
			terms = append(terms, name+" ASC NULLS FIRST")
		}
	}
	// stable pages when the requested ordering has ties
	terms = append(terms, "id ASC")
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
