package assets

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListQuery(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		q, err := ParseListQuery(url.Values{}, 25)
		require.NoError(t, err)
		assert.Equal(t, []string{DefaultOrdering}, q.Ordering)
		assert.Empty(t, q.Filters)
		assert.Nil(t, q.IsComplete)
		assert.Equal(t, 0, q.Offset)
		assert.Equal(t, 25, q.PageSize)
	})

	t.Run("filters search ordering and cursor", func(t *testing.T) {
		values := url.Values{
			"department":    {"UIS"},
			"private":       {"true"},
			"risk_type":     {"financial"},
			"search":        {"  payroll  "},
			"ordering":      {"name,-updated_at"},
			"is_complete":   {"false"},
			"cursor":        {EncodeCursor(50)},
			"format":        {"json"},
			"purpose_other": {"not queryable"},
		}
		q, err := ParseListQuery(values, 25)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"department": "UIS", "private": "true", "risk_type": "financial"}, q.Filters)
		assert.Equal(t, "payroll", q.Search)
		assert.Equal(t, []string{"name", "-updated_at"}, q.Ordering)
		require.NotNil(t, q.IsComplete)
		assert.False(t, *q.IsComplete)
		assert.Equal(t, 50, q.Offset)
	})

	t.Run("invalid values", func(t *testing.T) {
		values := url.Values{
			"ordering":    {"-password"},
			"id":          {"not-a-uuid"},
			"private":     {"maybe"},
			"is_complete": {"perhaps"},
			"cursor":      {"!!!"},
			"created_at":  {"yesterday"},
		}
		_, err := ParseListQuery(values, 25)
		var fe FieldErrors
		require.ErrorAs(t, err, &fe)
		for _, key := range []string{"ordering", "id", "private", "is_complete", "cursor", "created_at"} {
			assert.Contains(t, fe, key)
		}
	})
}

func TestCursor(t *testing.T) {
	for _, offset := range []int{0, 1, 25, 1000} {
		got, err := DecodeCursor(EncodeCursor(offset))
		require.NoError(t, err)
		assert.Equal(t, offset, got)
	}

	for _, bad := range []string{"", "###", "bz0tMQ", "eD0x"} {
		_, err := DecodeCursor(bad)
		assert.Error(t, err, bad)
	}
}

func TestSQLBuilder(t *testing.T) {
	t.Run("visibility", func(t *testing.T) {
		b := &sqlBuilder{}
		b.visible(Visibility{InGroup: true, Institutions: []string{"UIS"}})
		assert.Equal(t, " WHERE deleted_at IS NULL AND (private = FALSE OR department = ANY($1))", b.whereSQL())
		assert.Len(t, b.args, 1)

		b = &sqlBuilder{}
		b.visible(Visibility{All: true})
		assert.Equal(t, " WHERE deleted_at IS NULL", b.whereSQL())
		assert.Empty(t, b.args)
	})

	t.Run("filters by kind", func(t *testing.T) {
		b := &sqlBuilder{}
		require.NoError(t, b.filters(map[string]string{
			"risk_type":     "financial",
			"personal_data": "true",
			"name":          "asset1",
		}))
		assert.Equal(t, " WHERE name = $1 AND personal_data = $2 AND $3 = ANY(risk_type)", b.whereSQL())
		assert.Equal(t, []interface{}{"asset1", true, "financial"}, b.args)
	})

	t.Run("unknown filter", func(t *testing.T) {
		b := &sqlBuilder{}
		assert.Error(t, b.filters(map[string]string{"deleted_at": "x"}))
	})

	t.Run("search terms are anded and escaped", func(t *testing.T) {
		b := &sqlBuilder{}
		b.search("pay 50%")
		require.Len(t, b.where, 2)
		assert.Contains(t, b.where[0], "name ILIKE $1")
		assert.Contains(t, b.where[0], "id::text ILIKE $1")
		assert.Contains(t, b.where[0], "array_to_string(data_subject, ' ') ILIKE $1")
		assert.NotContains(t, b.where[0], "purpose_other")
		assert.Contains(t, b.where[1], "$2")
		assert.Equal(t, []interface{}{"%pay%", `%50\%%`}, b.args)
	})
}

func TestOrderBySQL(t *testing.T) {
	got, err := orderBySQL(nil)
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY created_at DESC NULLS LAST, id ASC", got)

	got, err = orderBySQL([]string{"name", "-department"})
	require.NoError(t, err)
	assert.Equal(t, " ORDER BY name ASC NULLS FIRST, department DESC NULLS LAST, id ASC", got)

	_, err = orderBySQL([]string{"name; DROP TABLE assets"})
	assert.Error(t, err)
}

func TestVisibilityEmpty(t *testing.T) {
	assert.True(t, Visibility{}.Empty())
	assert.False(t, Visibility{InGroup: true}.Empty())
	assert.False(t, Visibility{All: true}.Empty())
}
