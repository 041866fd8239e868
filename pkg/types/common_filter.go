package types

import (
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq     CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq  CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt     CommonFilterOperator = "lt"
	CommonFilterOperatorLte    CommonFilterOperator = "lte"
	CommonFilterOperatorGt     CommonFilterOperator = "gt"
	CommonFilterOperatorGte    CommonFilterOperator = "gte"
	CommonFilterOperatorRange  CommonFilterOperator = "range"
	CommonFilterOperatorIn     CommonFilterOperator = "in"
	CommonFilterOperatorNotIn  CommonFilterOperator = "not_in"
	CommonFilterOperatorIsNull CommonFilterOperator = "is_null"
)

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate checks the field against an allow list and the operator arity.
func (f *CommonFilter) Validate(allowedFields []string) error {
	if f == nil {
		return fmt.Errorf("nil filter")
	}
	if !lo.Contains(allowedFields, f.Field) {
		return fmt.Errorf("filter field not allowed: %s", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorIsNull:
		return nil
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return fmt.Errorf("filter %s: range needs two values", f.Field)
		}
	case CommonFilterOperatorEq, CommonFilterOperatorNotEq, CommonFilterOperatorLt, CommonFilterOperatorLte,
		CommonFilterOperatorGt, CommonFilterOperatorGte, CommonFilterOperatorIn, CommonFilterOperatorNotIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("filter %s: missing values", f.Field)
		}
	default:
		return fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Operator)
	}
	return nil
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if f.Operator == CommonFilterOperatorIsNull {
		isNull := true
		if len(f.Values) > 0 && fmt.Sprint(f.Values[0]) == "false" {
			isNull = false
		}
		if isNull {
			clause.Eq{Column: clause.Column{Name: f.Field}, Value: nil}.Build(builder)
		} else {
			clause.Neq{Column: clause.Column{Name: f.Field}, Value: nil}.Build(builder)
		}
		return
	}
	if len(f.Values) == 0 {
		builder.WriteString("1=1")
		return
	}

	column := clause.Column{Name: f.Field}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: column, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			builder.WriteString("1=1")
			return
		}
		clause.And(clause.Gte{Column: column, Value: f.Values[0]}, clause.Lte{Column: column, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: column, Values: f.Values}.Build(builder)
	case CommonFilterOperatorNotIn:
		clause.Not(clause.IN{Column: column, Values: f.Values}).Build(builder)
	default:
		builder.WriteString("1=1")
	}
}

// FiltersWhere joins a list of filters with AND into a single clause.Expression.
type FiltersWhere []*CommonFilter

func (w FiltersWhere) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, f := range w {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		f.Build(builder)
	}
}
