package query

import (
	"strconv"
	"strings"

	"lattice/internal/core"
)

// Parse tokenizes and parses query text against the grammar spec.md §4.6
// defines, returning a ParsedQuery. Malformed input returns a
// *core.QueryParseError identifying the offending token's byte offset
// within the original text.
func Parse(src string) (ParsedQuery, error) {
	p := &parser{lx: newLexer(src), src: src}
	if err := p.advance(); err != nil {
		return ParsedQuery{}, p.wrap(err)
	}

	q, err := p.parseQuery()
	if err != nil {
		return ParsedQuery{}, p.wrap(err)
	}
	return q, nil
}

type parser struct {
	lx  *lexer
	src string
	cur tok
}

func (p *parser) wrap(err error) error {
	if le, ok := err.(*lexError); ok {
		return &core.QueryParseError{Query: p.src, Position: le.pos, Message: le.message}
	}
	if pe, ok := err.(*parseError); ok {
		return &core.QueryParseError{Query: p.src, Position: pe.pos, Message: pe.message}
	}
	return err
}

type parseError struct {
	pos     int
	message string
}

func (e *parseError) Error() string { return e.message }

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) errf(message string) error {
	return &parseError{pos: p.cur.pos, message: message}
}

// identIs reports whether the current token is an identifier matching word,
// case-insensitively — keywords in this grammar are case-insensitive while
// dotted field paths are not.
func (p *parser) identIs(word string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, word)
}

func (p *parser) parseQuery() (ParsedQuery, error) {
	var q ParsedQuery

	if p.identIs("SELECT") {
		if err := p.advance(); err != nil {
			return q, err
		}
		if err := p.expectStar(); err != nil {
			return q, err
		}
		if err := p.expectKeyword("FROM"); err != nil {
			return q, err
		}
		if err := p.expectKeyword("documents"); err != nil {
			return q, err
		}
	}

	if p.identIs("WHERE") {
		if err := p.advance(); err != nil {
			return q, err
		}
		filters, err := p.parseWhere()
		if err != nil {
			return q, err
		}
		q.Filters = filters
	}

	if p.identIs("ORDER") {
		if err := p.advance(); err != nil {
			return q, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return q, err
		}
		key, dir, err := p.parseOrder()
		if err != nil {
			return q, err
		}
		q.OrderBy = key
		q.OrderDirection = dir
		q.HasOrderBy = true
	}

	if p.identIs("LIMIT") {
		if err := p.advance(); err != nil {
			return q, err
		}
		n, err := p.parseInt()
		if err != nil {
			return q, err
		}
		q.Limit = &n
	}

	if p.identIs("OFFSET") {
		if err := p.advance(); err != nil {
			return q, err
		}
		n, err := p.parseInt()
		if err != nil {
			return q, err
		}
		q.Offset = &n
	}

	if p.cur.kind != tokEOF {
		return q, p.errf("unexpected trailing token " + p.cur.text)
	}

	return q, nil
}

func (p *parser) expectKeyword(word string) error {
	if !p.identIs(word) {
		return p.errf("expected " + word)
	}
	return p.advance()
}

func (p *parser) expectStar() error {
	if p.cur.kind != tokStar {
		return p.errf("expected '*'")
	}
	return p.advance()
}

func (p *parser) parseWhere() ([]Filter, error) {
	var filters []Filter
	for {
		f, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)

		if p.identIs("AND") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return filters, nil
}

func (p *parser) parsePredicate() (Filter, error) {
	if p.cur.kind != tokIdent {
		return Filter{}, p.errf("expected field name")
	}
	field := p.cur.text
	if err := p.advance(); err != nil {
		return Filter{}, err
	}

	switch {
	case p.identIs("IS"):
		return p.parseIsNull(field)
	case p.identIs("LIKE"):
		return p.parseLike(field)
	case p.cur.kind == tokOp:
		return p.parseComparison(field)
	default:
		return Filter{}, p.errf("expected operator, IS, or LIKE after field name")
	}
}

func (p *parser) parseIsNull(field string) (Filter, error) {
	if err := p.advance(); err != nil { // consume IS
		return Filter{}, err
	}
	negate := false
	if p.identIs("NOT") {
		negate = true
		if err := p.advance(); err != nil {
			return Filter{}, err
		}
	}
	if err := p.expectKeyword("NULL"); err != nil {
		return Filter{}, err
	}
	cond := IsNull
	if negate {
		cond = IsNotNull
	}
	return Filter{Field: field, Condition: cond}, nil
}

func (p *parser) parseLike(field string) (Filter, error) {
	if err := p.advance(); err != nil { // consume LIKE
		return Filter{}, err
	}
	if p.cur.kind != tokString {
		return Filter{}, p.errf("expected string literal after LIKE")
	}
	pattern := p.cur.text
	if err := p.advance(); err != nil {
		return Filter{}, err
	}
	cond, value := likeCondition(pattern)
	return Filter{Field: field, Condition: cond, Value: value}, nil
}

// likeCondition translates the LIKE '%x%' wildcard forms spec.md §4.6 names
// into a Condition + bare value: leading/trailing '%' select Contains,
// StartsWith, or EndsWith; no wildcard at all is exact equality.
func likeCondition(pattern string) (Condition, string) {
	hasPrefix := strings.HasPrefix(pattern, "%")
	hasSuffix := strings.HasSuffix(pattern, "%")
	switch {
	case hasPrefix && hasSuffix && len(pattern) >= 2:
		return Contains, pattern[1 : len(pattern)-1]
	case hasSuffix:
		return StartsWith, pattern[:len(pattern)-1]
	case hasPrefix:
		return EndsWith, pattern[1:]
	default:
		return Eq, pattern
	}
}

func (p *parser) parseComparison(field string) (Filter, error) {
	opText := p.cur.text
	if err := p.advance(); err != nil {
		return Filter{}, err
	}
	value, err := p.parseLiteral()
	if err != nil {
		return Filter{}, err
	}

	cond, err := conditionFor(opText)
	if err != nil {
		return Filter{}, p.errf(err.Error())
	}
	return Filter{Field: field, Condition: cond, Value: value}, nil
}

func conditionFor(op string) (Condition, error) {
	switch op {
	case "=":
		return Eq, nil
	case "!=", "<>":
		return Neq, nil
	case ">":
		return Gt, nil
	case ">=":
		return Gte, nil
	case "<":
		return Lt, nil
	case "<=":
		return Lte, nil
	default:
		return "", errUnknownOperator(op)
	}
}

func errUnknownOperator(op string) error {
	return &parseError{message: "unknown operator " + op}
}

func (p *parser) parseLiteral() (string, error) {
	switch {
	case p.cur.kind == tokString:
		v := p.cur.text
		return v, p.advance()
	case p.cur.kind == tokNumber:
		v := p.cur.text
		return v, p.advance()
	case p.identIs("true") || p.identIs("false"):
		v := strings.ToLower(p.cur.text)
		return v, p.advance()
	default:
		return "", p.errf("expected a literal value")
	}
}

func (p *parser) parseOrder() (OrderKey, OrderDirection, error) {
	if p.cur.kind != tokIdent {
		return "", "", p.errf("expected an order-by key")
	}
	key := OrderKey(strings.ToLower(p.cur.text))
	switch key {
	case OrderCreatedUTC, OrderLastUpdateUTC, OrderName:
	default:
		return "", "", p.errf("unknown order-by key " + p.cur.text)
	}
	if err := p.advance(); err != nil {
		return "", "", err
	}

	dir := DefaultDirection(key)
	if p.identIs("ASC") {
		dir = Asc
		if err := p.advance(); err != nil {
			return "", "", err
		}
	} else if p.identIs("DESC") {
		dir = Desc
		if err := p.advance(); err != nil {
			return "", "", err
		}
	}
	return key, dir, nil
}

func (p *parser) parseInt() (int, error) {
	if p.cur.kind != tokNumber {
		return 0, p.errf("expected an integer")
	}
	n, err := strconv.Atoi(p.cur.text)
	if err != nil {
		return 0, p.errf("invalid integer " + p.cur.text)
	}
	return n, p.advance()
}
