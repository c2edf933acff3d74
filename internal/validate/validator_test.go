package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/livegate/pkg/parser"
)

func newTestValidator() *Validator {
	return New("app", []string{"users", "orders", "events"})
}

func mustParse(t *testing.T, sql string) *parser.SelectStmt {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	return stmt
}

func TestValidate_AcceptsReadQueries(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"simple", "SELECT id, name FROM users"},
		{"schema qualified", "SELECT id FROM app.users"},
		{"aggregate", "SELECT status, count(*) FROM orders GROUP BY status"},
		{"join", "SELECT u.name FROM users u JOIN orders o ON o.user_id = u.id"},
		{"cte", "WITH recent AS (SELECT id FROM events LIMIT 5) SELECT * FROM recent"},
		{"derived table", "SELECT t.n FROM (SELECT count(*) AS n FROM users) AS t"},
		{"subquery filter", "SELECT id FROM users WHERE id IN (SELECT user_id FROM orders)"},
		{"scalar functions", "SELECT upper(name), coalesce(age, 0) FROM users WHERE deleted_at IS NULL"},
		{"union", "SELECT id FROM users UNION SELECT user_id FROM orders"},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(mustParse(t, tt.sql))
			assert.True(t, verdict.OK, "reason=%s node=%s", verdict.Reason, verdict.Node)
		})
	}
}

func TestValidate_RejectsDisallowedFunctions(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		fn   string
	}{
		{"sleep", "SELECT pg_sleep(10) FROM users", "pg_sleep"},
		{"file read", "SELECT load_extension('evil') FROM users", "load_extension"},
		{"random blob", "SELECT randomblob(1000000000) FROM users", "randomblob"},
		{"nested in where", "SELECT id FROM users WHERE id = pg_backend_pid()", "pg_backend_pid"},
		{"inside aggregate arg", "SELECT sum(pg_sleep(1)) FROM users", "pg_sleep"},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(mustParse(t, tt.sql))
			require.False(t, verdict.OK)
			assert.Equal(t, ReasonDisallowedFunc, verdict.Reason)
			assert.Contains(t, verdict.Node, tt.fn)
		})
	}
}

func TestValidate_RejectsForeignNamespace(t *testing.T) {
	v := newTestValidator()

	verdict := v.Validate(mustParse(t, "SELECT * FROM pg_catalog.pg_tables"))
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonNamespace, verdict.Reason)
	assert.Contains(t, verdict.Node, "pg_catalog")

	// Same table name in a different schema is still a violation.
	verdict = v.Validate(mustParse(t, "SELECT * FROM other.users"))
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonNamespace, verdict.Reason)
}

func TestValidate_RejectsUnknownTables(t *testing.T) {
	v := newTestValidator()

	verdict := v.Validate(mustParse(t, "SELECT * FROM secrets"))
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonUnknownTable, verdict.Reason)
	assert.Contains(t, verdict.Node, "secrets")

	// Unknown table inside a subquery is found too.
	verdict = v.Validate(mustParse(t, "SELECT id FROM users WHERE id IN (SELECT id FROM secrets)"))
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonUnknownTable, verdict.Reason)
}

func TestValidate_CTENamesAreInScope(t *testing.T) {
	v := newTestValidator()

	// "recent" is not a catalog table but is defined by the WITH clause.
	verdict := v.Validate(mustParse(t,
		"WITH recent AS (SELECT id FROM events) SELECT r.id FROM recent r JOIN users ON users.id = r.id"))
	assert.True(t, verdict.OK, "reason=%s node=%s", verdict.Reason, verdict.Node)

	// A CTE body cannot reference a table defined by a later CTE's name.
	verdict = v.Validate(mustParse(t,
		"WITH a AS (SELECT id FROM b), b AS (SELECT id FROM users) SELECT * FROM a"))
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonUnknownTable, verdict.Reason)
}

func TestValidate_NestingDepthBounded(t *testing.T) {
	sql := "SELECT id FROM users WHERE id IN "
	open := ""
	closing := ""
	for i := 0; i < 12; i++ {
		open += "(SELECT id FROM users WHERE id IN "
		closing += ")"
	}
	sql += open + "(1)" + closing

	v := newTestValidator()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)

	verdict := v.Validate(stmt)
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonNestingTooDeep, verdict.Reason)
}

func TestValidate_NilStatement(t *testing.T) {
	v := newTestValidator()
	verdict := v.Validate(nil)
	require.False(t, verdict.OK)
	assert.Equal(t, ReasonEmptyStatement, verdict.Reason)
}

func TestValidate_IsPure(t *testing.T) {
	// Validating the same statement twice yields identical verdicts and
	// does not mutate the statement.
	v := newTestValidator()
	stmt := mustParse(t, "SELECT id FROM users WHERE age > 21")

	first := v.Validate(stmt)
	second := v.Validate(stmt)
	assert.Equal(t, first, second)
	assert.True(t, first.OK)
}
