// Package paginate resolves validated queries into stable keyset pages.
//
// The validated query text is never rewritten. It is wrapped as a
// derived subquery and the resolver appends the keyset predicate, sort
// order, and limit around it, binding all cursor values as parameters.
package paginate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/leapstack-labs/livegate/internal/catalog"
	"github.com/leapstack-labs/livegate/internal/cursor"
	"github.com/leapstack-labs/livegate/internal/session"
	"github.com/leapstack-labs/livegate/pkg/parser"
)

const (
	// DefaultLimit applies when a request leaves the page size unset.
	DefaultLimit = 50
	// MaxLimit caps the page size of a single request.
	MaxLimit = 500

	countCacheSize = 256
)

// SortKey is one column of the effective sort order.
type SortKey struct {
	Column string
	Desc   bool
}

// Request asks for one page of a validated query.
type Request struct {
	// SQL is the validated query text, forwarded verbatim.
	SQL string
	// Query is the parsed form of SQL.
	Query *parser.SelectStmt
	// Limit is the page size. Zero requests an empty page with
	// accurate page info; negative means DefaultLimit.
	Limit int
	// After and Before are opaque cursors. At most one may be set.
	After  string
	Before string
	// WithTotalCount requests the filtered row count.
	WithTotalCount bool
}

// Page is one resolved page of results.
type Page struct {
	Columns         []string `json:"columns"`
	Items           [][]any  `json:"items"`
	StartCursor     *string  `json:"startCursor"`
	EndCursor       *string  `json:"endCursor"`
	HasNextPage     bool     `json:"hasNextPage"`
	HasPreviousPage bool     `json:"hasPreviousPage"`
	// TotalCount is -1 when not requested.
	TotalCount int64 `json:"totalCount"`
}

// RequestError reports a request the resolver cannot serve, such as
// conflicting cursors or a sort column missing from the projection.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

type countKey struct {
	fingerprint uint64
	seq         uint64
}

// Resolver turns validated queries into keyset pages.
type Resolver struct {
	sessions *session.Manager
	catalog  *catalog.Catalog
	counts   *lru.Cache[countKey, int64]
	seq      func() uint64
	logger   *slog.Logger
}

// NewResolver creates a resolver. seq reports the current dataset
// sequence and scopes the total-count cache; nil pins it to zero.
func NewResolver(sessions *session.Manager, cat *catalog.Catalog, seq func() uint64, logger *slog.Logger) *Resolver {
	if seq == nil {
		seq = func() uint64 { return 0 }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	counts, _ := lru.New[countKey, int64](countCacheSize)
	return &Resolver{
		sessions: sessions,
		catalog:  cat,
		counts:   counts,
		seq:      seq,
		logger:   logger,
	}
}

// Resolve executes one page of the request.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Page, error) {
	if req.After != "" && req.Before != "" {
		return nil, &RequestError{Message: "after and before cursors are mutually exclusive"}
	}

	limit := req.Limit
	if limit < 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	keys, err := r.sortKeys(req.Query)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(strings.TrimSpace(req.SQL), ";")
	fp := cursor.Fingerprint(base, sortDescriptor(keys))

	var pos *cursor.Cursor
	backward := false
	if token := req.After; token != "" {
		c, err := cursor.Decode(token, fp)
		if err != nil {
			return nil, err
		}
		pos = &c
	} else if token := req.Before; token != "" {
		c, err := cursor.Decode(token, fp)
		if err != nil {
			return nil, err
		}
		pos = &c
		backward = true
	}
	if pos != nil && len(pos.Values) != len(keys) {
		return nil, &cursor.MismatchError{}
	}

	// Traversal runs in the requested order, or fully inverted when
	// paging backward; the page is re-reversed before returning.
	traversal := keys
	if backward {
		traversal = invert(keys)
	}

	query, args := buildPageQuery(base, traversal, pos, limit+1, r.sessions)
	rs, err := r.sessions.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	keyIdx, err := keyIndexes(rs.Columns, keys)
	if err != nil {
		return nil, err
	}

	rows := rs.Rows
	overflow := len(rows) > limit
	if overflow {
		rows = rows[:limit]
	}
	if backward {
		reverse(rows)
	}

	page := &Page{
		Columns:    rs.Columns,
		Items:      rows,
		TotalCount: -1,
	}
	// Overflow probes the traversal side. The far side is inferred
	// from the cursor: its boundary row lies beyond this page unless
	// it was deleted after the cursor was issued.
	if backward {
		page.HasPreviousPage = overflow
		page.HasNextPage = true
	} else {
		page.HasNextPage = overflow
		page.HasPreviousPage = pos != nil
	}

	if len(rows) > 0 {
		start := cursor.Encode(cursor.Cursor{Key: fp, Dir: cursor.Backward, Values: keyValues(rows[0], keyIdx)})
		end := cursor.Encode(cursor.Cursor{Key: fp, Dir: cursor.Forward, Values: keyValues(rows[len(rows)-1], keyIdx)})
		page.StartCursor = &start
		page.EndCursor = &end
	}

	if req.WithTotalCount {
		total, err := r.totalCount(ctx, base, fp)
		if err != nil {
			return nil, err
		}
		page.TotalCount = total
	}
	return page, nil
}

// sortKeys derives the effective sort order: the query's top-level
// ORDER BY columns, with the primary table's identity column appended
// as a tie-break when absent. Every key must appear in the result
// projection, checked here so a bad sort column is rejected before the
// engine ever sees the query.
func (r *Resolver) sortKeys(stmt *parser.SelectStmt) ([]SortKey, error) {
	if stmt == nil || stmt.Body == nil {
		return nil, &RequestError{Message: "query has no body"}
	}

	var keys []SortKey
	for _, item := range lastCore(stmt.Body).OrderBy {
		col, ok := item.Expr.(*parser.ColumnRef)
		if !ok {
			return nil, &RequestError{Message: "pagination requires ORDER BY on plain columns"}
		}
		keys = append(keys, SortKey{Column: col.Column, Desc: item.Desc})
	}

	identity, ok := r.identityColumn(stmt.Body)
	if !ok && len(keys) == 0 {
		return nil, &RequestError{Message: "query has no sortable identity; add an ORDER BY"}
	}
	if ok {
		present := false
		for _, k := range keys {
			if strings.EqualFold(k.Column, identity) {
				present = true
				break
			}
		}
		if !present {
			keys = append(keys, SortKey{Column: identity})
		}
	}

	for _, k := range keys {
		if !r.projected(stmt.Body.Left, k.Column) {
			return nil, &RequestError{Message: fmt.Sprintf("sort column %q is not in the result projection", k.Column)}
		}
	}
	return keys, nil
}

// projected reports whether the named column appears in the first
// core's projection, which names the result columns. Stars over
// sources the catalog does not know defer to the engine.
func (r *Resolver) projected(core *parser.SelectCore, column string) bool {
	if core == nil {
		return false
	}
	for _, item := range core.Columns {
		switch {
		case item.TableStar != "":
			return true
		case item.Star:
			if r.starProjects(core, column) {
				return true
			}
		case item.Alias != "":
			if strings.EqualFold(item.Alias, column) {
				return true
			}
		default:
			if ref, ok := item.Expr.(*parser.ColumnRef); ok && strings.EqualFold(ref.Column, column) {
				return true
			}
		}
	}
	return false
}

// starProjects resolves SELECT * against the catalog columns of every
// FROM source. A derived or unknown source projects anything.
func (r *Resolver) starProjects(core *parser.SelectCore, column string) bool {
	if core.From == nil {
		return false
	}
	sources := []parser.TableRef{core.From.Source}
	for _, j := range core.From.Joins {
		sources = append(sources, j.Right)
	}
	for _, src := range sources {
		name, ok := src.(*parser.TableName)
		if !ok {
			return true
		}
		t, ok := r.catalog.Table(name.Name)
		if !ok {
			return true
		}
		for _, col := range t.Columns {
			if strings.EqualFold(col.Name, column) {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) identityColumn(body *parser.SelectBody) (string, bool) {
	core := body.Left
	if core == nil || core.From == nil {
		return "", false
	}
	name, ok := core.From.Source.(*parser.TableName)
	if !ok {
		return "", false
	}
	return r.catalog.Identity(name.Name)
}

func (r *Resolver) totalCount(ctx context.Context, base string, fp uint64) (int64, error) {
	key := countKey{fingerprint: fp, seq: r.seq()}
	if total, ok := r.counts.Get(key); ok {
		return total, nil
	}

	rs, err := r.sessions.Execute(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) AS q", base))
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) != 1 || len(rs.Rows[0]) != 1 {
		return 0, fmt.Errorf("unexpected count result shape")
	}

	total, err := toInt64(rs.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("unexpected count value: %w", err)
	}
	r.counts.Add(key, total)
	return total, nil
}

func lastCore(body *parser.SelectBody) *parser.SelectCore {
	for body.Right != nil {
		body = body.Right
	}
	return body.Left
}

func sortDescriptor(keys []SortKey) []string {
	desc := make([]string, len(keys))
	for i, k := range keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		desc[i] = k.Column + " " + dir
	}
	return desc
}

func invert(keys []SortKey) []SortKey {
	out := make([]SortKey, len(keys))
	for i, k := range keys {
		out[i] = SortKey{Column: k.Column, Desc: !k.Desc}
	}
	return out
}

func keyIndexes(columns []string, keys []SortKey) ([]int, error) {
	idx := make([]int, len(keys))
	for i, k := range keys {
		idx[i] = -1
		for j, col := range columns {
			if strings.EqualFold(col, k.Column) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, &RequestError{Message: fmt.Sprintf("sort column %q is not in the result projection", k.Column)}
		}
	}
	return idx, nil
}

func keyValues(row []any, idx []int) []any {
	values := make([]any, len(idx))
	for i, j := range idx {
		values[i] = row[j]
	}
	return values
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value %v has type %T", v, v)
	}
}

func reverse(rows [][]any) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
