package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/livegate/pkg/adapter"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c := New("app", nil)
	c.Put(adapter.Table{
		Schema: "app",
		Name:   "users",
		Columns: []adapter.Column{
			{Name: "user_id", Type: "INTEGER", PrimaryKey: true, Position: 1},
			{Name: "name", Type: "TEXT", Position: 2},
			{Name: "age", Type: "INTEGER", Position: 3},
		},
	})
	c.Put(adapter.Table{
		Schema: "app",
		Name:   "events",
		Columns: []adapter.Column{
			{Name: "ts", Type: "TIMESTAMP", Position: 1},
			{Name: "id", Type: "INTEGER", Position: 2},
			{Name: "payload", Type: "TEXT", Position: 3},
		},
	})
	c.Put(adapter.Table{
		Schema: "app",
		Name:   "pairs",
		Columns: []adapter.Column{
			{Name: "left_id", Type: "INTEGER", PrimaryKey: true, Position: 1},
			{Name: "right_id", Type: "INTEGER", PrimaryKey: true, Position: 2},
		},
	})
	return c
}

func TestCatalogLookup(t *testing.T) {
	c := newTestCatalog(t)

	assert.Equal(t, "app", c.Schema())
	assert.Equal(t, []string{"events", "pairs", "users"}, c.TableNames())

	tbl, ok := c.Table("USERS")
	require.True(t, ok)
	assert.Equal(t, "users", tbl.Name)
	assert.Len(t, tbl.Columns, 3)

	_, ok = c.Table("events")
	assert.True(t, ok)
	_, ok = c.Table("missing")
	assert.False(t, ok)
}

func TestCatalogIdentity(t *testing.T) {
	c := newTestCatalog(t)

	// Single-column primary key wins.
	col, ok := c.Identity("users")
	require.True(t, ok)
	assert.Equal(t, "user_id", col)

	// No primary key: a column named "id" is preferred.
	col, ok = c.Identity("events")
	require.True(t, ok)
	assert.Equal(t, "id", col)

	// Composite primary key falls back to declaration order.
	col, ok = c.Identity("pairs")
	require.True(t, ok)
	assert.Equal(t, "left_id", col)

	_, ok = c.Identity("missing")
	assert.False(t, ok)
}
