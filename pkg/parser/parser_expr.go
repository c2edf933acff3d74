package parser

import (
	"strings"

	"github.com/leapstack-labs/livegate/pkg/token"
)

// Expression grammar, loosest binding first:
//
//	expr          → or_expr
//	or_expr       → and_expr (OR and_expr)*
//	and_expr      → not_expr (AND not_expr)*
//	not_expr      → NOT not_expr | comparison
//	comparison    → additive ((=|!=|<|>|<=|>=) additive
//	                | IS [NOT] NULL | [NOT] IN (...) | [NOT] BETWEEN … AND …
//	                | [NOT] LIKE additive)?
//	additive      → multiplicative ((+|-|'||') multiplicative)*
//	multiplicative→ unary ((*|/|%) unary)*
//	unary         → (-|+) unary | primary

// parseExpr parses an expression.
func (p *Parser) parseExpr() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	if left == nil {
		return nil
	}
	for p.check(token.OR) {
		p.nextToken()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{Left: left, Op: token.OR, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseNot()
	if left == nil {
		return nil
	}
	for p.check(token.AND) {
		p.nextToken()
		right := p.parseNot()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{Left: left, Op: token.AND, Right: right}
	}
	return left
}

func (p *Parser) parseNot() Expr {
	if p.match(token.NOT) {
		expr := p.parseNot()
		if expr == nil {
			return nil
		}
		return &UnaryExpr{Op: token.NOT, Expr: expr}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() Expr {
	left := p.parseAdditive()
	if left == nil {
		return nil
	}

	switch p.token.Type {
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE:
		op := p.token.Type
		p.nextToken()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		return &BinaryExpr{Left: left, Op: op, Right: right}

	case token.IS:
		p.nextToken()
		not := p.match(token.NOT)
		if !p.expect(token.NULL) {
			return nil
		}
		return &IsNullExpr{Expr: left, Not: not}

	case token.IN:
		return p.parseInRest(left, false)

	case token.BETWEEN:
		return p.parseBetweenRest(left, false)

	case token.LIKE:
		return p.parseLikeRest(left, false)

	case token.NOT:
		// expr NOT IN / NOT BETWEEN / NOT LIKE
		p.nextToken()
		switch p.token.Type {
		case token.IN:
			return p.parseInRest(left, true)
		case token.BETWEEN:
			return p.parseBetweenRest(left, true)
		case token.LIKE:
			return p.parseLikeRest(left, true)
		default:
			p.addError(ErrUnexpectedToken, p.token.Type, "IN, BETWEEN, or LIKE")
			return nil
		}
	}

	return left
}

// parseInRest parses the remainder of an IN expression; the current token is IN.
func (p *Parser) parseInRest(left Expr, not bool) Expr {
	p.nextToken() // consume IN
	if !p.expect(token.LPAREN) {
		return nil
	}

	in := &InExpr{Expr: left, Not: not}

	if p.check(token.SELECT) || p.check(token.WITH) {
		in.Query = p.parseSelectStmt()
		if in.Query == nil {
			return nil
		}
	} else {
		for {
			v := p.parseExpr()
			if v == nil {
				return nil
			}
			in.Values = append(in.Values, v)
			if !p.match(token.COMMA) {
				break
			}
		}
	}

	if !p.expect(token.RPAREN) {
		return nil
	}
	return in
}

// parseBetweenRest parses the remainder of a BETWEEN expression.
// Bounds are parsed at additive precedence so the separating AND is not
// consumed as a boolean conjunction.
func (p *Parser) parseBetweenRest(left Expr, not bool) Expr {
	p.nextToken() // consume BETWEEN

	low := p.parseAdditive()
	if low == nil {
		return nil
	}
	if !p.expect(token.AND) {
		return nil
	}
	high := p.parseAdditive()
	if high == nil {
		return nil
	}
	return &BetweenExpr{Expr: left, Not: not, Low: low, High: high}
}

// parseLikeRest parses the remainder of a LIKE expression.
func (p *Parser) parseLikeRest(left Expr, not bool) Expr {
	p.nextToken() // consume LIKE
	pattern := p.parseAdditive()
	if pattern == nil {
		return nil
	}
	return &LikeExpr{Expr: left, Not: not, Pattern: pattern}
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}
	for p.check(token.PLUS) || p.check(token.MINUS) || p.check(token.DPIPE) {
		op := p.token.Type
		p.nextToken()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for p.check(token.STAR) || p.check(token.SLASH) || p.check(token.PERCENT) {
		op := p.token.Type
		p.nextToken()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	if p.check(token.MINUS) || p.check(token.PLUS) {
		op := p.token.Type
		p.nextToken()
		expr := p.parseUnary()
		if expr == nil {
			return nil
		}
		return &UnaryExpr{Op: op, Expr: expr}
	}
	return p.parsePrimary()
}

// parsePrimary parses literals, column references, function calls, CASE,
// CAST, EXISTS, subqueries, and parenthesized expressions.
func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case token.NUMBER:
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case token.STRING:
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case token.TRUE, token.FALSE:
		lit := &Literal{Type: LiteralBool, Value: strings.ToUpper(p.token.Literal)}
		p.nextToken()
		return lit

	case token.NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}

	case token.CASE:
		return p.parseCase()

	case token.CAST:
		return p.parseCast()

	case token.EXISTS:
		p.nextToken()
		if !p.expect(token.LPAREN) {
			return nil
		}
		sel := p.parseSelectStmt()
		if sel == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		return &ExistsExpr{Select: sel}

	case token.IDENT:
		return p.parseIdentExpr()

	case token.LPAREN:
		p.nextToken()
		if p.check(token.SELECT) || p.check(token.WITH) {
			sel := p.parseSelectStmt()
			if sel == nil {
				return nil
			}
			if !p.expect(token.RPAREN) {
				return nil
			}
			return &SubqueryExpr{Select: sel}
		}
		inner := p.parseExpr()
		if inner == nil {
			return nil
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		return &ParenExpr{Expr: inner}

	default:
		p.addError(ErrUnexpectedToken, p.token.Type, "expression")
		return nil
	}
}

// parseIdentExpr parses a column reference, qualified name, or function call.
func (p *Parser) parseIdentExpr() Expr {
	name := p.token.Literal

	// Function call
	if p.checkPeek(token.LPAREN) {
		p.nextToken() // onto (
		p.nextToken() // past (
		return p.parseFuncArgs(name)
	}

	p.nextToken()

	// Qualified column: t.col or t.*
	if p.match(token.DOT) {
		if p.check(token.STAR) {
			p.nextToken()
			return &StarExpr{Table: name}
		}
		if !p.check(token.IDENT) {
			p.addError(ErrUnexpectedToken, p.token.Type, token.IDENT)
			return nil
		}
		col := &ColumnRef{Table: name, Column: p.token.Literal}
		p.nextToken()
		return col
	}

	return &ColumnRef{Column: name}
}

// parseFuncArgs parses a function argument list; the opening paren has been
// consumed.
func (p *Parser) parseFuncArgs(name string) Expr {
	fc := &FuncCall{Name: name}

	if p.check(token.STAR) {
		fc.Star = true
		p.nextToken()
		if !p.expect(token.RPAREN) {
			return nil
		}
		return fc
	}

	if p.check(token.RPAREN) {
		p.nextToken()
		return fc
	}

	if p.match(token.DISTINCT) {
		fc.Distinct = true
	}

	for {
		arg := p.parseExpr()
		if arg == nil {
			return nil
		}
		fc.Args = append(fc.Args, arg)
		if !p.match(token.COMMA) {
			break
		}
	}

	if !p.expect(token.RPAREN) {
		return nil
	}
	return fc
}

// parseCase parses a CASE expression; the current token is CASE.
func (p *Parser) parseCase() Expr {
	p.nextToken() // consume CASE

	ce := &CaseExpr{}
	if !p.check(token.WHEN) {
		ce.Operand = p.parseExpr()
		if ce.Operand == nil {
			return nil
		}
	}

	for p.match(token.WHEN) {
		cond := p.parseExpr()
		if cond == nil {
			return nil
		}
		if !p.expect(token.THEN) {
			return nil
		}
		result := p.parseExpr()
		if result == nil {
			return nil
		}
		ce.Whens = append(ce.Whens, WhenClause{Condition: cond, Result: result})
	}
	if len(ce.Whens) == 0 {
		p.addError(ErrUnexpectedToken, p.token.Type, token.WHEN)
		return nil
	}

	if p.match(token.ELSE) {
		ce.Else = p.parseExpr()
		if ce.Else == nil {
			return nil
		}
	}

	if !p.expect(token.END) {
		return nil
	}
	return ce
}

// parseCast parses CAST(expr AS typename); the current token is CAST.
func (p *Parser) parseCast() Expr {
	p.nextToken() // consume CAST
	if !p.expect(token.LPAREN) {
		return nil
	}

	expr := p.parseExpr()
	if expr == nil {
		return nil
	}
	if !p.expect(token.AS) {
		return nil
	}
	if !p.check(token.IDENT) {
		p.addError(ErrUnexpectedToken, p.token.Type, "type name")
		return nil
	}

	typeName := p.token.Literal
	p.nextToken()

	// Optional precision/scale: VARCHAR(10), DECIMAL(10, 2)
	if p.match(token.LPAREN) {
		var parts []string
		for {
			if !p.check(token.NUMBER) {
				p.addError(ErrUnexpectedToken, p.token.Type, token.NUMBER)
				return nil
			}
			parts = append(parts, p.token.Literal)
			p.nextToken()
			if !p.match(token.COMMA) {
				break
			}
		}
		if !p.expect(token.RPAREN) {
			return nil
		}
		typeName += "(" + strings.Join(parts, ", ") + ")"
	}

	if !p.expect(token.RPAREN) {
		return nil
	}
	return &CastExpr{Expr: expr, TypeName: typeName}
}
