package paginate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/livegate/internal/cursor"
)

type placeholderer interface {
	Placeholder(n int) string
}

// buildPageQuery wraps the validated query as a derived subquery and
// appends the keyset predicate, sort order, and limit for one traversal.
// keys are the sort keys in traversal order and pos, when set, is the
// exclusive boundary to resume from.
//
// NULL ordering is pinned explicitly (ascending NULLS LAST, descending
// NULLS FIRST) so cursors stay stable across engines with different
// defaults.
func buildPageQuery(base string, keys []SortKey, pos *cursor.Cursor, limit int, ph placeholderer) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT * FROM (")
	b.WriteString(base)
	b.WriteString(") AS q")

	if pos != nil {
		b.WriteString(" WHERE ")
		b.WriteString(keysetPredicate(keys, pos.Values, &args, ph))
	}

	b.WriteString(" ORDER BY ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("q.")
		b.WriteString(quoteIdent(k.Column))
		if k.Desc {
			b.WriteString(" DESC NULLS FIRST")
		} else {
			b.WriteString(" ASC NULLS LAST")
		}
	}

	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String(), args
}

// keysetPredicate builds the row-value comparison "strictly after pos in
// traversal order", expanded per column so mixed sort directions and
// NULL boundary values work:
//
//	((k1 > v1 OR k1 IS NULL)) OR (k1 = v1 AND (k2 > v2 OR k2 IS NULL)) OR ...
//
// with the strict arm mirrored for descending keys. Under the pinned
// NULL ordering, rows after a non-null ascending boundary include the
// NULL group, and nothing sorts after a NULL boundary on that key
// alone, so that branch is dropped and ties fall through to the next
// key.
func keysetPredicate(keys []SortKey, values []any, args *[]any, ph placeholderer) string {
	var clauses []string
	for i := range keys {
		if values[i] == nil && !keys[i].Desc {
			continue
		}
		var parts []string
		for j := 0; j < i; j++ {
			parts = append(parts, equalArm(keys[j], values[j], args, ph))
		}
		parts = append(parts, strictArm(keys[i], values[i], args, ph))
		clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")
	}
	if len(clauses) == 0 {
		return "1 = 0"
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " OR ") + ")"
}

func equalArm(k SortKey, v any, args *[]any, ph placeholderer) string {
	if v == nil {
		return fmt.Sprintf("q.%s IS NULL", quoteIdent(k.Column))
	}
	return fmt.Sprintf("q.%s = %s", quoteIdent(k.Column), nextPlaceholder(args, v, ph))
}

func strictArm(k SortKey, v any, args *[]any, ph placeholderer) string {
	col := quoteIdent(k.Column)
	if k.Desc {
		if v == nil {
			return fmt.Sprintf("q.%s IS NOT NULL", col)
		}
		return fmt.Sprintf("q.%s < %s", col, nextPlaceholder(args, v, ph))
	}
	return fmt.Sprintf("(q.%s > %s OR q.%s IS NULL)", col, nextPlaceholder(args, v, ph), col)
}

func nextPlaceholder(args *[]any, value any, ph placeholderer) string {
	*args = append(*args, value)
	return ph.Placeholder(len(*args))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
