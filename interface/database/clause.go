package db

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder returns the placeholder of the i-th parameter of a query (1-based)
type Placeholder func(i int) string

// DollarPlaceholder is the placeholder of postgres: $1, $2...
func DollarPlaceholder(i int) string {
	return "$" + strconv.Itoa(i)
}

// QuestionPlaceholder is the placeholder of sqlite: ?
func QuestionPlaceholder(int) string {
	return "?"
}

// LimitOffsetClause returns the LIMIT/OFFSET clause of a paginated query
func LimitOffsetClause(page, limit int) string {
	if limit > 0 {
		if page > 0 {
			return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
		}
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return ""
}

// parseString to be used by LIKE
// * will be replace by %, "?" by "_", "_" by "\\_"
// Return false if the string does not have ? or *
func parseString(s string) (string, bool) {
	s = strings.ReplaceAll(strings.ReplaceAll(s, "_", "\\_"), "%", "\\%")
	news := strings.ReplaceAll(strings.ReplaceAll(s, "*", "%"), "?", "_")
	return news, s != news
}

// ParseLike parses a value to be used by LIKE
// * will be replace by %, "?" by "_"
// Return the operator: = or LIKE
func ParseLike(value string) (string, string) {
	if newv, parsed := parseString(value); parsed {
		return newv, "LIKE"
	}
	return value, "="
}

// JoinClause builds a clause from conditions and their parameters
type JoinClause struct {
	Parameters  []interface{}
	clause      []string
	placeholder Placeholder
}

// NewJoinClause creates an empty clause
func NewJoinClause(placeholder Placeholder) *JoinClause {
	return &JoinClause{placeholder: placeholder}
}

// Append a condition. Each %s of the condition is replaced by the placeholder of the corresponding parameter.
func (wc *JoinClause) Append(condition string, parameters ...interface{}) {
	positions := []interface{}{}
	for i := range parameters {
		positions = append(positions, wc.placeholder(len(wc.Parameters)+i+1))
	}

	wc.Parameters = append(wc.Parameters, parameters...)
	wc.clause = append(wc.clause, fmt.Sprintf(condition, positions...))
}

// AppendLike appends a condition on a column, using LIKE if the value has wildcards
func (wc *JoinClause) AppendLike(column, value string) {
	value, op := ParseLike(value)
	if op == "LIKE" {
		wc.Append(column+" LIKE %s ESCAPE '\\'", value)
		return
	}
	wc.Append(column+" = %s", value)
}

func (wc JoinClause) WhereClause() string {
	return wc.Clause(" WHERE ", " AND ", "")
}

func (wc JoinClause) Clause(prefix, sep, suffix string) string {
	if len(wc.clause) > 0 {
		return prefix + strings.Join(wc.clause, sep) + suffix
	}
	return ""
}
