package selector

import (
	"fmt"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Match evaluates the selector against a decoded record document.
// A nil selector matches every record.
func (s *Selector) Match(doc map[string]any) (bool, error) {
	if s == nil || s.expr == nil {
		return true, nil
	}
	return s.evalExpr(s.expr, doc)
}

func (s *Selector) evalExpr(e *expr.Expr, doc map[string]any) (bool, error) {
	if e == nil {
		return true, nil
	}

	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return false, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}

	switch call.CallExpr.Function {
	case "_&&_", "AND":
		return s.evalLogical(call.CallExpr.Args, doc, true)
	case "_||_", "OR":
		return s.evalLogical(call.CallExpr.Args, doc, false)
	case "_==_", "=":
		return s.evalComparison(call.CallExpr.Args, doc, "=")
	case "_!=_", "!=":
		return s.evalComparison(call.CallExpr.Args, doc, "!=")
	case "_<_", "<":
		return s.evalComparison(call.CallExpr.Args, doc, "<")
	case "_<=_", "<=":
		return s.evalComparison(call.CallExpr.Args, doc, "<=")
	case "_>_", ">":
		return s.evalComparison(call.CallExpr.Args, doc, ">")
	case "_>=_", ">=":
		return s.evalComparison(call.CallExpr.Args, doc, ">=")
	default:
		return false, fmt.Errorf("unsupported function: %s", call.CallExpr.Function)
	}
}

func (s *Selector) evalLogical(args []*expr.Expr, doc map[string]any, conjunction bool) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("logical operator requires 2 arguments")
	}
	left, err := s.evalExpr(args[0], doc)
	if err != nil {
		return false, err
	}
	if conjunction && !left {
		return false, nil
	}
	if !conjunction && left {
		return true, nil
	}
	return s.evalExpr(args[1], doc)
}

func (s *Selector) evalComparison(args []*expr.Expr, doc map[string]any, op string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("comparison requires 2 arguments")
	}
	field, err := extractFieldName(args[0])
	if err != nil {
		return false, err
	}
	if _, ok := s.fields[field]; !ok {
		return false, fmt.Errorf("unknown field: %s", field)
	}
	want, err := extractValue(args[1])
	if err != nil {
		return false, err
	}

	got, present := doc[field]
	if !present {
		// An absent field never matches a comparison.
		return false, nil
	}

	return compare(got, want, op)
}

func compare(got, want any, op string) (bool, error) {
	if gf, gok := toFloat(got); gok {
		wf, wok := toFloat(want)
		if !wok {
			return false, nil
		}
		return compareOrdered(gf, wf, op)
	}

	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return false, nil
		}
		return compareOrdered(g, w, op)
	case bool:
		w, ok := want.(bool)
		if !ok {
			return false, nil
		}
		switch op {
		case "=":
			return g == w, nil
		case "!=":
			return g != w, nil
		default:
			return false, fmt.Errorf("operator %s is not defined for booleans", op)
		}
	default:
		return false, fmt.Errorf("unsupported value type: %T", got)
	}
}

func compareOrdered[T string | float64](got, want T, op string) (bool, error) {
	switch op {
	case "=":
		return got == want, nil
	case "!=":
		return got != want, nil
	case "<":
		return got < want, nil
	case "<=":
		return got <= want, nil
	case ">":
		return got > want, nil
	case ">=":
		return got >= want, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
