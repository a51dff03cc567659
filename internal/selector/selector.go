// Package selector provides AIP-160 filter expressions over record fields.
//
// A selector is parsed once against the declared fields of a table and can
// then be compiled to a SQL condition by backends with native querying, or
// evaluated in-process against decoded records by backends without one.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Type describes the declared type of a filterable field.
type Type int

const (
	// TypeString declares a string field.
	TypeString Type = iota
	// TypeInt declares an integer field.
	TypeInt
	// TypeFloat declares a floating-point field.
	TypeFloat
	// TypeBool declares a boolean field.
	TypeBool
)

// Field declares one filterable record field.
type Field struct {
	Name string
	Type Type
}

// Selector is a parsed filter expression bound to a set of declared fields.
type Selector struct {
	raw    string
	expr   *expr.Expr
	fields map[string]Type
}

// Parse parses an AIP-160 filter expression against the declared fields.
// An empty filter string yields a nil selector, which matches every record.
func Parse(filterStr string, fields []Field) (*Selector, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}

	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	known := make(map[string]Type, len(fields))
	for _, f := range fields {
		opts = append(opts, filtering.DeclareIdent(f.Name, filteringType(f.Type)))
		known[f.Name] = f.Type
	}
	decls, err := filtering.NewDeclarations(opts...)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}

	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	return &Selector{raw: filterStr, expr: filter.CheckedExpr.Expr, fields: known}, nil
}

func filteringType(t Type) *expr.Type {
	switch t {
	case TypeInt:
		return filtering.TypeInt
	case TypeFloat:
		return filtering.TypeFloat
	case TypeBool:
		return filtering.TypeBool
	default:
		return filtering.TypeString
	}
}

// String returns the raw filter expression. A nil selector returns "".
func (s *Selector) String() string {
	if s == nil {
		return ""
	}
	return s.raw
}

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	// Clause is the SQL WHERE clause (e.g., "json_extract(doc, '$.name') = ?").
	Clause string
	// Params are the positional parameters for the clause.
	Params []any
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL compiles the selector into a condition over JSON document fields.
// A nil selector compiles to an empty condition (no restriction).
func (s *Selector) SQL() (SQLCondition, error) {
	if s == nil || s.expr == nil {
		return SQLCondition{}, nil
	}
	return s.translateExpr(s.expr)
}

func (s *Selector) translateExpr(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return s.translateCall(kind.CallExpr)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func (s *Selector) translateCall(call *expr.Expr_Call) (SQLCondition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return s.translateLogical(call.Args, "AND")
	case "_||_", "OR":
		return s.translateLogical(call.Args, "OR")
	case "_==_", "=":
		return s.translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return s.translateComparison(call.Args, "!=")
	case "_<_", "<":
		return s.translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return s.translateComparison(call.Args, "<=")
	case "_>_", ">":
		return s.translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return s.translateComparison(call.Args, ">=")
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func (s *Selector) translateLogical(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := s.translateExpr(args[0])
	if err != nil {
		return SQLCondition{}, err
	}

	right, err := s.translateExpr(args[1])
	if err != nil {
		return SQLCondition{}, err
	}

	return SQLCondition{
		Clause: fmt.Sprintf("(%s %s %s)", left.Clause, op, right.Clause),
		Params: append(left.Params, right.Params...),
	}, nil
}

func (s *Selector) translateComparison(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return SQLCondition{}, err
	}
	if _, ok := s.fields[field]; !ok {
		return SQLCondition{}, fmt.Errorf("unknown field: %s", field)
	}
	if !identPattern.MatchString(field) {
		return SQLCondition{}, fmt.Errorf("invalid field name: %s", field)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return SQLCondition{}, err
	}

	return SQLCondition{
		Clause: fmt.Sprintf("json_extract(doc, '$.%s') %s ?", field, op),
		Params: []any{value},
	}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	default:
		return nil, fmt.Errorf("expected constant, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return kind.Uint64Value, nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}
