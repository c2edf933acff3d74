package paginate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/livegate/internal/catalog"
	"github.com/leapstack-labs/livegate/internal/cursor"
	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/pkg/adapter"
	sqliteadapter "github.com/leapstack-labs/livegate/pkg/adapters/sqlite"
	"github.com/leapstack-labs/livegate/pkg/parser"
)

// newSeededResolver seeds a sqlite dataset and wires the full
// adapter → session → resolver stack against it read-only.
func newSeededResolver(t *testing.T, seed string) *Resolver {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dataset.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(seed)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	a := sqliteadapter.New(nil)
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Type: "sqlite", Path: path}))
	t.Cleanup(func() { _ = a.Close() })

	cat := catalog.New("app", nil)
	require.NoError(t, cat.Load(context.Background(), a))

	sessions := session.NewManager(a, session.Limits{}, nil)
	return NewResolver(sessions, cat, nil, nil)
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return newSeededResolver(t, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);
		INSERT INTO users (id, name, age) VALUES
			(1, 'ada', 57),
			(2, 'grace', 32),
			(3, 'edsger', 22),
			(4, 'donald', 71);
	`)
}

func mustParse(t *testing.T, query string) *parser.SelectStmt {
	t.Helper()
	stmt, err := parser.Parse(query)
	require.NoError(t, err)
	return stmt
}

func ages(page *Page) []any {
	idx := -1
	for i, col := range page.Columns {
		if col == "age" {
			idx = i
		}
	}
	var out []any
	for _, row := range page.Items {
		out = append(out, row[idx])
	}
	return out
}

func TestResolveForwardPaging(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users ORDER BY age"
	stmt := mustParse(t, sql)

	first, err := r.Resolve(context.Background(), Request{SQL: sql, Query: stmt, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(22), int64(32)}, ages(first))
	assert.True(t, first.HasNextPage)
	assert.False(t, first.HasPreviousPage)
	require.NotNil(t, first.EndCursor)

	second, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 2, After: *first.EndCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(57), int64(71)}, ages(second))
	assert.False(t, second.HasNextPage)
	assert.True(t, second.HasPreviousPage)
}

func TestResolveBackwardPaging(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users ORDER BY age"
	stmt := mustParse(t, sql)

	first, err := r.Resolve(context.Background(), Request{SQL: sql, Query: stmt, Limit: 2})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 2, After: *first.EndCursor,
	})
	require.NoError(t, err)
	require.NotNil(t, second.StartCursor)

	// Paging back from the second page returns the first page in the
	// requested order.
	back, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 2, Before: *second.StartCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(22), int64(32)}, ages(back))
	assert.True(t, back.HasNextPage)
	assert.False(t, back.HasPreviousPage)
}

func TestResolveDescendingSort(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users ORDER BY age DESC"
	stmt := mustParse(t, sql)

	first, err := r.Resolve(context.Background(), Request{SQL: sql, Query: stmt, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(71), int64(57), int64(32)}, ages(first))

	second, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 3, After: *first.EndCursor,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(22)}, ages(second))
	assert.False(t, second.HasNextPage)
}

func TestResolveDefaultSortUsesIdentity(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users WHERE age > 30"
	stmt := mustParse(t, sql)

	page, err := r.Resolve(context.Background(), Request{SQL: sql, Query: stmt, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(57), int64(32), int64(71)}, ages(page))
	assert.False(t, page.HasNextPage)
}

func TestResolveTotalCount(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users WHERE age > 30"
	stmt := mustParse(t, sql)

	page, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 1, WithTotalCount: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.Len(t, page.Items, 1)

	// The count is invariant under paging position.
	next, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 1, After: *page.EndCursor, WithTotalCount: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.TotalCount)

	plain, err := r.Resolve(context.Background(), Request{SQL: sql, Query: stmt, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), plain.TotalCount)
}

func TestResolveZeroLimit(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users"
	stmt := mustParse(t, sql)

	page, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: stmt, Limit: 0, WithTotalCount: true,
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.StartCursor)
	assert.Nil(t, page.EndCursor)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, int64(4), page.TotalCount)
}

func TestResolveRejectsForeignCursor(t *testing.T) {
	r := newTestResolver(t)

	sqlA := "SELECT * FROM users ORDER BY age"
	pageA, err := r.Resolve(context.Background(), Request{SQL: sqlA, Query: mustParse(t, sqlA), Limit: 1})
	require.NoError(t, err)
	require.NotNil(t, pageA.EndCursor)

	sqlB := "SELECT * FROM users WHERE age > 30 ORDER BY age"
	_, err = r.Resolve(context.Background(), Request{
		SQL: sqlB, Query: mustParse(t, sqlB), Limit: 1, After: *pageA.EndCursor,
	})
	var me *cursor.MismatchError
	assert.ErrorAs(t, err, &me)
}

func TestResolveRejectsConflictingCursors(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT * FROM users"

	_, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: mustParse(t, sql), Limit: 1, After: "x", Before: "y",
	})
	var re *RequestError
	assert.ErrorAs(t, err, &re)
}

func TestResolveRejectsHiddenSortColumn(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT name FROM users ORDER BY age"

	_, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: mustParse(t, sql), Limit: 2,
	})
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "age")

	// The rejection is deterministic and never classified as an
	// engine failure.
	var eu *session.EngineUnavailableError
	assert.False(t, errors.As(err, &eu))
}

func TestResolveRejectsUnprojectedIdentity(t *testing.T) {
	r := newTestResolver(t)
	sql := "SELECT name FROM users"

	// No ORDER BY, so the identity tie-break applies; it must be in
	// the projection for cursors to carry its value.
	_, err := r.Resolve(context.Background(), Request{
		SQL: sql, Query: mustParse(t, sql), Limit: 2,
	})
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "id")
}

func TestResolvePagesThroughNullSortKeys(t *testing.T) {
	r := newSeededResolver(t, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER);
		INSERT INTO users (id, name, age) VALUES
			(1, 'ada', 30),
			(2, 'grace', NULL),
			(3, 'edsger', 10),
			(4, 'donald', NULL),
			(5, 'barbara', 50);
	`)
	sql := "SELECT * FROM users ORDER BY age"
	stmt := mustParse(t, sql)

	var ids []any
	after := ""
	for {
		page, err := r.Resolve(context.Background(), Request{
			SQL: sql, Query: stmt, Limit: 2, After: after,
		})
		require.NoError(t, err)
		for _, row := range page.Items {
			ids = append(ids, row[0])
		}
		if !page.HasNextPage {
			break
		}
		require.NotNil(t, page.EndCursor)
		after = *page.EndCursor
	}

	// NULL ages sort last, tie-broken by id; no row is skipped when a
	// page boundary lands inside the NULL group.
	assert.Equal(t, []any{int64(3), int64(1), int64(5), int64(2), int64(4)}, ids)
}

func TestBuildPageQuery(t *testing.T) {
	keys := []SortKey{{Column: "age"}, {Column: "id"}}
	pos := &cursor.Cursor{Dir: cursor.Forward, Values: []any{32, 2}}

	query, args := buildPageQuery("SELECT * FROM users", keys, pos, 3, qmark{})

	assert.Equal(t,
		`SELECT * FROM (SELECT * FROM users) AS q`+
			` WHERE (((q."age" > ? OR q."age" IS NULL)) OR (q."age" = ? AND (q."id" > ? OR q."id" IS NULL)))`+
			` ORDER BY q."age" ASC NULLS LAST, q."id" ASC NULLS LAST LIMIT 3`,
		query)
	assert.Equal(t, []any{32, 32, 2}, args)
}

func TestBuildPageQueryNullBoundary(t *testing.T) {
	keys := []SortKey{{Column: "age"}, {Column: "id"}}
	pos := &cursor.Cursor{Dir: cursor.Forward, Values: []any{nil, 2}}

	query, args := buildPageQuery("SELECT * FROM users", keys, pos, 3, qmark{})

	// Nothing sorts after a NULL ascending boundary on that key alone,
	// so only the tie-break branch remains.
	assert.Equal(t,
		`SELECT * FROM (SELECT * FROM users) AS q`+
			` WHERE (q."age" IS NULL AND (q."id" > ? OR q."id" IS NULL))`+
			` ORDER BY q."age" ASC NULLS LAST, q."id" ASC NULLS LAST LIMIT 3`,
		query)
	assert.Equal(t, []any{2}, args)
}

func TestBuildPageQueryDescending(t *testing.T) {
	keys := []SortKey{{Column: "age", Desc: true}}
	pos := &cursor.Cursor{Dir: cursor.Forward, Values: []any{57}}

	query, args := buildPageQuery("SELECT * FROM users", keys, pos, 2, qmark{})

	assert.Equal(t,
		`SELECT * FROM (SELECT * FROM users) AS q`+
			` WHERE (q."age" < ?) ORDER BY q."age" DESC NULLS FIRST LIMIT 2`,
		query)
	assert.Equal(t, []any{57}, args)
}

type qmark struct{}

func (qmark) Placeholder(int) string { return "?" }
