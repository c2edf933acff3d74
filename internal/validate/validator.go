// Package validate implements the gateway's query allowlist policy.
//
// A validator walks a parsed statement and accepts or rejects it before
// anything reaches the execution engine. Validation is pure: it never
// touches the engine and has no side effects. Every rejection names the
// offending construct so the caller can produce an actionable error.
package validate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/livegate/pkg/parser"
)

// Verdict is the result of validating one statement. A Verdict is produced
// once per statement and never mutated.
type Verdict struct {
	OK     bool
	Reason string // rejection category, empty when OK
	Node   string // offending construct, empty when OK
}

// Rejection reasons.
const (
	ReasonEmptyStatement    = "empty statement"
	ReasonNamespace         = "namespace violation"
	ReasonUnknownTable      = "unknown table"
	ReasonDisallowedFunc    = "disallowed function"
	ReasonNestingTooDeep    = "nesting too deep"
	ReasonUnsupportedConstr = "unsupported construct"
)

// maxNestingDepth bounds subquery/CTE nesting so the walk (and later the
// engine's planner) stays cheap on adversarial input.
const maxNestingDepth = 8

// Validator checks statements against the served namespace and the fixed
// construct allowlist.
type Validator struct {
	schema string
	tables map[string]struct{}
}

// New creates a validator for the given served schema and its table names.
func New(schema string, tables []string) *Validator {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &Validator{schema: strings.ToLower(schema), tables: set}
}

// Schema returns the namespace the validator serves.
func (v *Validator) Schema() string {
	return v.schema
}

// Validate walks the statement and returns an accept/reject verdict.
func (v *Validator) Validate(stmt *parser.SelectStmt) Verdict {
	if stmt == nil || stmt.Body == nil {
		return reject(ReasonEmptyStatement, "statement")
	}
	w := &walker{v: v}
	return w.selectStmt(stmt, newScope(nil), 0)
}

// reject builds a rejection verdict.
func reject(reason, node string) Verdict {
	return Verdict{Reason: reason, Node: node}
}

// accepted is the single accepting verdict.
var accepted = Verdict{OK: true}

// scope tracks table aliases visible at one nesting level: CTE names and
// derived-table aliases are legal references even though they are not
// catalog tables.
type scope struct {
	parent *scope
	names  map[string]struct{}
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]struct{})}
}

func (s *scope) add(name string) {
	s.names[strings.ToLower(name)] = struct{}{}
}

func (s *scope) has(name string) bool {
	name = strings.ToLower(name)
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.names[name]; ok {
			return true
		}
	}
	return false
}

// walker carries the validator through one statement.
type walker struct {
	v *Validator
}

func (w *walker) selectStmt(stmt *parser.SelectStmt, sc *scope, depth int) Verdict {
	if depth > maxNestingDepth {
		return reject(ReasonNestingTooDeep, fmt.Sprintf("subquery nesting exceeds %d levels", maxNestingDepth))
	}

	sc = newScope(sc)
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			if verdict := w.selectStmt(cte.Select, sc, depth+1); !verdict.OK {
				return verdict
			}
			sc.add(cte.Name)
		}
	}
	return w.selectBody(stmt.Body, sc, depth)
}

func (w *walker) selectBody(body *parser.SelectBody, sc *scope, depth int) Verdict {
	if verdict := w.selectCore(body.Left, sc, depth); !verdict.OK {
		return verdict
	}
	if body.Right != nil {
		return w.selectBody(body.Right, sc, depth)
	}
	return accepted
}

func (w *walker) selectCore(core *parser.SelectCore, sc *scope, depth int) Verdict {
	if core == nil {
		return reject(ReasonEmptyStatement, "select core")
	}

	// FROM first so aliases are in scope for the remaining clauses.
	if core.From != nil {
		if verdict := w.tableRef(core.From.Source, sc, depth); !verdict.OK {
			return verdict
		}
		for _, join := range core.From.Joins {
			if verdict := w.tableRef(join.Right, sc, depth); !verdict.OK {
				return verdict
			}
			if join.Condition != nil {
				if verdict := w.expr(join.Condition, sc, depth); !verdict.OK {
					return verdict
				}
			}
		}
	}

	for _, item := range core.Columns {
		if item.Expr != nil {
			if verdict := w.expr(item.Expr, sc, depth); !verdict.OK {
				return verdict
			}
		}
	}
	for _, e := range []parser.Expr{core.Where, core.Having, core.Limit, core.Offset} {
		if e == nil {
			continue
		}
		if verdict := w.expr(e, sc, depth); !verdict.OK {
			return verdict
		}
	}
	for _, e := range core.GroupBy {
		if verdict := w.expr(e, sc, depth); !verdict.OK {
			return verdict
		}
	}
	for _, item := range core.OrderBy {
		if verdict := w.expr(item.Expr, sc, depth); !verdict.OK {
			return verdict
		}
	}
	return accepted
}

func (w *walker) tableRef(ref parser.TableRef, sc *scope, depth int) Verdict {
	switch t := ref.(type) {
	case *parser.TableName:
		if t.Schema != "" && strings.ToLower(t.Schema) != w.v.schema {
			return reject(ReasonNamespace, fmt.Sprintf("table %q in schema %q", t.Name, t.Schema))
		}
		if !sc.has(t.Name) {
			if _, ok := w.v.tables[strings.ToLower(t.Name)]; !ok {
				return reject(ReasonUnknownTable, fmt.Sprintf("table %q", t.Name))
			}
		}
		if t.Alias != "" {
			sc.add(t.Alias)
		}
		return accepted

	case *parser.DerivedTable:
		if verdict := w.selectStmt(t.Select, sc, depth+1); !verdict.OK {
			return verdict
		}
		if t.Alias != "" {
			sc.add(t.Alias)
		}
		return accepted

	case nil:
		return reject(ReasonEmptyStatement, "table reference")

	default:
		return reject(ReasonUnsupportedConstr, fmt.Sprintf("table reference %T", ref))
	}
}

func (w *walker) expr(e parser.Expr, sc *scope, depth int) Verdict {
	switch x := e.(type) {
	case *parser.ColumnRef, *parser.Literal, *parser.StarExpr:
		return accepted

	case *parser.BinaryExpr:
		if verdict := w.expr(x.Left, sc, depth); !verdict.OK {
			return verdict
		}
		return w.expr(x.Right, sc, depth)

	case *parser.UnaryExpr:
		return w.expr(x.Expr, sc, depth)

	case *parser.ParenExpr:
		return w.expr(x.Expr, sc, depth)

	case *parser.FuncCall:
		if !allowedFunc(x.Name) {
			return reject(ReasonDisallowedFunc, fmt.Sprintf("function %q", x.Name))
		}
		for _, arg := range x.Args {
			if verdict := w.expr(arg, sc, depth); !verdict.OK {
				return verdict
			}
		}
		return accepted

	case *parser.CaseExpr:
		if x.Operand != nil {
			if verdict := w.expr(x.Operand, sc, depth); !verdict.OK {
				return verdict
			}
		}
		for _, when := range x.Whens {
			if verdict := w.expr(when.Condition, sc, depth); !verdict.OK {
				return verdict
			}
			if verdict := w.expr(when.Result, sc, depth); !verdict.OK {
				return verdict
			}
		}
		if x.Else != nil {
			return w.expr(x.Else, sc, depth)
		}
		return accepted

	case *parser.CastExpr:
		return w.expr(x.Expr, sc, depth)

	case *parser.InExpr:
		if verdict := w.expr(x.Expr, sc, depth); !verdict.OK {
			return verdict
		}
		for _, v := range x.Values {
			if verdict := w.expr(v, sc, depth); !verdict.OK {
				return verdict
			}
		}
		if x.Query != nil {
			return w.selectStmt(x.Query, sc, depth+1)
		}
		return accepted

	case *parser.BetweenExpr:
		for _, sub := range []parser.Expr{x.Expr, x.Low, x.High} {
			if verdict := w.expr(sub, sc, depth); !verdict.OK {
				return verdict
			}
		}
		return accepted

	case *parser.IsNullExpr:
		return w.expr(x.Expr, sc, depth)

	case *parser.LikeExpr:
		if verdict := w.expr(x.Expr, sc, depth); !verdict.OK {
			return verdict
		}
		return w.expr(x.Pattern, sc, depth)

	case *parser.SubqueryExpr:
		return w.selectStmt(x.Select, sc, depth+1)

	case *parser.ExistsExpr:
		return w.selectStmt(x.Select, sc, depth+1)

	case nil:
		return reject(ReasonEmptyStatement, "expression")

	default:
		// Node types added to the parser must be classified here before
		// they can pass validation.
		return reject(ReasonUnsupportedConstr, fmt.Sprintf("expression %T", e))
	}
}
