// Package parser provides parsing for the read-only SQL subset served by the
// gateway.
//
// # Usage
//
//	stmt, err := parser.Parse("SELECT a, b FROM t WHERE a > 1")
//	if err != nil {
//	    // handle error
//	}
//
// # Grammar Overview
//
// The parser implements a recursive descent parser for a subset of SQL:
//
//	statement     → [WITH cte_list] select_body [";"] EOF
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL] select_body]
//	select_core   → SELECT [DISTINCT] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [ORDER BY order_list] [LIMIT expr] [OFFSET expr]
//
// Exactly one statement is accepted; any input after the optional trailing
// semicolon is a parse error.
package parser

import (
	"fmt"

	"github.com/leapstack-labs/livegate/pkg/token"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer  *Lexer
	token  token.Token // current token
	peek   token.Token // lookahead token
	peek2  token.Token // second lookahead token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{
		lexer: NewLexer(sql),
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the SQL and returns the AST for the single statement.
func Parse(sql string) (*SelectStmt, error) {
	p := NewParser(sql)
	stmt := p.parseStatement()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return stmt, nil
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// checkPeek2 returns true if the second lookahead token is of the given type.
func (p *Parser) checkPeek2(t token.TokenType) bool {
	return p.peek2.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(ErrUnexpectedToken, p.token.Type, t)
	return false
}

// addError records a parse error at the current token position.
func (p *Parser) addError(format string, args ...any) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: fmt.Sprintf(format, args...),
	})
}

// ---------- Statement Parsing ----------

// parseStatement parses the single top-level statement.
func (p *Parser) parseStatement() *SelectStmt {
	if !p.check(token.SELECT) && !p.check(token.WITH) {
		p.addError(ErrNotReadOnly, p.token.Literal)
		return nil
	}

	stmt := p.parseSelectStmt()
	if stmt == nil {
		return nil
	}

	// Optional trailing semicolon, then nothing else.
	p.match(token.SEMICOLON)
	if !p.check(token.EOF) {
		p.addError(ErrMultiStatement)
		return nil
	}
	return stmt
}

// parseSelectStmt parses [WITH cte_list] select_body.
func (p *Parser) parseSelectStmt() *SelectStmt {
	stmt := &SelectStmt{Pos: p.token.Pos}

	if p.check(token.WITH) {
		stmt.With = p.parseWithClause()
		if stmt.With == nil {
			return nil
		}
	}

	stmt.Body = p.parseSelectBody()
	if stmt.Body == nil {
		return nil
	}
	return stmt
}

// parseWithClause parses WITH name AS (select) [, name AS (select)]*.
func (p *Parser) parseWithClause() *WithClause {
	p.nextToken() // consume WITH

	clause := &WithClause{}
	for {
		if !p.check(token.IDENT) {
			p.addError(ErrUnexpectedToken, p.token.Type, token.IDENT)
			return nil
		}
		cte := &CTE{Name: p.token.Literal}
		p.nextToken()

		if !p.expect(token.AS) {
			return nil
		}
		if !p.expect(token.LPAREN) {
			return nil
		}
		cte.Select = p.parseSelectStmt()
		if cte.Select == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		clause.CTEs = append(clause.CTEs, cte)

		if !p.match(token.COMMA) {
			break
		}
	}
	return clause
}

// parseSelectBody parses a select core with optional chained set operations.
func (p *Parser) parseSelectBody() *SelectBody {
	body := &SelectBody{}
	body.Left = p.parseSelectCore()
	if body.Left == nil {
		return nil
	}

	switch p.token.Type {
	case token.UNION:
		p.nextToken()
		if p.match(token.ALL) {
			body.Op = SetOpUnionAll
			body.All = true
		} else {
			body.Op = SetOpUnion
		}
	case token.INTERSECT:
		p.nextToken()
		body.Op = SetOpIntersect
	case token.EXCEPT:
		p.nextToken()
		body.Op = SetOpExcept
	default:
		return body
	}

	body.Right = p.parseSelectBody()
	if body.Right == nil {
		return nil
	}
	return body
}

// parseSelectCore parses the core SELECT clause.
func (p *Parser) parseSelectCore() *SelectCore {
	if !p.expect(token.SELECT) {
		return nil
	}

	core := &SelectCore{}

	if p.match(token.DISTINCT) {
		core.Distinct = true
	} else {
		p.match(token.ALL)
	}

	// SELECT list
	for {
		item, ok := p.parseSelectItem()
		if !ok {
			return nil
		}
		core.Columns = append(core.Columns, item)
		if !p.match(token.COMMA) {
			break
		}
	}

	if p.check(token.FROM) {
		core.From = p.parseFromClause()
		if core.From == nil {
			return nil
		}
	}

	if p.match(token.WHERE) {
		core.Where = p.parseExpr()
		if core.Where == nil {
			return nil
		}
	}

	if p.check(token.GROUP) {
		p.nextToken()
		if !p.expect(token.BY) {
			return nil
		}
		for {
			e := p.parseExpr()
			if e == nil {
				return nil
			}
			core.GroupBy = append(core.GroupBy, e)
			if !p.match(token.COMMA) {
				break
			}
		}
	}

	if p.match(token.HAVING) {
		core.Having = p.parseExpr()
		if core.Having == nil {
			return nil
		}
	}

	if p.check(token.ORDER) {
		p.nextToken()
		if !p.expect(token.BY) {
			return nil
		}
		for {
			item, ok := p.parseOrderByItem()
			if !ok {
				return nil
			}
			core.OrderBy = append(core.OrderBy, item)
			if !p.match(token.COMMA) {
				break
			}
		}
	}

	if p.match(token.LIMIT) {
		core.Limit = p.parseExpr()
		if core.Limit == nil {
			return nil
		}
	}

	if p.match(token.OFFSET) {
		core.Offset = p.parseExpr()
		if core.Offset == nil {
			return nil
		}
	}

	return core
}

// parseSelectItem parses one item in the SELECT list.
func (p *Parser) parseSelectItem() (SelectItem, bool) {
	// SELECT *
	if p.check(token.STAR) {
		p.nextToken()
		return SelectItem{Star: true}, true
	}

	// SELECT t.*
	if p.check(token.IDENT) && p.checkPeek(token.DOT) && p.checkPeek2(token.STAR) {
		name := p.token.Literal
		p.nextToken() // dot
		p.nextToken() // star
		p.nextToken()
		return SelectItem{TableStar: name}, true
	}

	expr := p.parseExpr()
	if expr == nil {
		return SelectItem{}, false
	}

	item := SelectItem{Expr: expr}
	if p.match(token.AS) {
		if !p.check(token.IDENT) {
			p.addError(ErrUnexpectedToken, p.token.Type, token.IDENT)
			return SelectItem{}, false
		}
		item.Alias = p.token.Literal
		p.nextToken()
	} else if p.check(token.IDENT) {
		// Bare alias
		item.Alias = p.token.Literal
		p.nextToken()
	}
	return item, true
}

// parseOrderByItem parses one ORDER BY item.
func (p *Parser) parseOrderByItem() (OrderByItem, bool) {
	expr := p.parseExpr()
	if expr == nil {
		return OrderByItem{}, false
	}

	item := OrderByItem{Expr: expr}
	if p.match(token.DESC) {
		item.Desc = true
	} else {
		p.match(token.ASC)
	}

	if p.check(token.NULLS) {
		p.nextToken()
		switch {
		case p.match(token.FIRST):
			v := true
			item.NullsFirst = &v
		case p.match(token.LAST):
			v := false
			item.NullsFirst = &v
		default:
			p.addError(ErrUnexpectedToken, p.token.Type, "FIRST or LAST")
			return OrderByItem{}, false
		}
	}
	return item, true
}

// ---------- FROM Clause ----------

// parseFromClause parses FROM table_ref join*.
func (p *Parser) parseFromClause() *FromClause {
	p.nextToken() // consume FROM

	from := &FromClause{}
	from.Source = p.parseTableRef()
	if from.Source == nil {
		return nil
	}

	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}
	if len(p.errors) > 0 {
		return nil
	}
	return from
}

// parseTableRef parses a table name or derived table.
func (p *Parser) parseTableRef() TableRef {
	if p.check(token.LPAREN) {
		p.nextToken()
		sel := p.parseSelectStmt()
		if sel == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		dt := &DerivedTable{Select: sel}
		p.match(token.AS)
		if p.check(token.IDENT) {
			dt.Alias = p.token.Literal
			p.nextToken()
		}
		return dt
	}

	if !p.check(token.IDENT) {
		p.addError(ErrUnexpectedToken, p.token.Type, "table name")
		return nil
	}

	tn := &TableName{Pos: p.token.Pos, Name: p.token.Literal}
	p.nextToken()

	if p.match(token.DOT) {
		if !p.check(token.IDENT) {
			p.addError(ErrUnexpectedToken, p.token.Type, token.IDENT)
			return nil
		}
		tn.Schema = tn.Name
		tn.Name = p.token.Literal
		p.nextToken()
	}

	p.match(token.AS)
	if p.check(token.IDENT) {
		tn.Alias = p.token.Literal
		p.nextToken()
	}
	return tn
}

// parseJoin parses one join clause, or returns nil when the current token
// does not begin a join.
func (p *Parser) parseJoin() *Join {
	var jt JoinType
	switch p.token.Type {
	case token.JOIN:
		jt = JoinInner
		p.nextToken()
	case token.INNER:
		jt = JoinInner
		p.nextToken()
		if !p.expect(token.JOIN) {
			return nil
		}
	case token.LEFT:
		jt = JoinLeft
		p.nextToken()
		p.match(token.OUTER)
		if !p.expect(token.JOIN) {
			return nil
		}
	case token.RIGHT:
		jt = JoinRight
		p.nextToken()
		p.match(token.OUTER)
		if !p.expect(token.JOIN) {
			return nil
		}
	case token.FULL:
		jt = JoinFull
		p.nextToken()
		p.match(token.OUTER)
		if !p.expect(token.JOIN) {
			return nil
		}
	case token.CROSS:
		jt = JoinCross
		p.nextToken()
		if !p.expect(token.JOIN) {
			return nil
		}
	default:
		return nil
	}

	join := &Join{Type: jt}
	join.Right = p.parseTableRef()
	if join.Right == nil {
		return nil
	}

	switch {
	case p.match(token.ON):
		join.Condition = p.parseExpr()
		if join.Condition == nil {
			return nil
		}
	case p.match(token.USING):
		if !p.expect(token.LPAREN) {
			return nil
		}
		for {
			if !p.check(token.IDENT) {
				p.addError(ErrUnexpectedToken, p.token.Type, token.IDENT)
				return nil
			}
			join.Using = append(join.Using, p.token.Literal)
			p.nextToken()
			if !p.match(token.COMMA) {
				break
			}
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
	case jt == JoinCross:
		// CROSS JOIN takes no condition.
	default:
		p.addError(ErrUnexpectedToken, p.token.Type, "ON or USING")
		return nil
	}
	return join
}
