package predicate

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/mapping"
	"github.com/pkg/errors"
)

// TranslationError 谓词中存在无法转换为 SQL 的节点
type TranslationError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("cannot translate %s: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Translator 将谓词翻译为某个表上的 SQL 条件片段
// 只读取表描述，可以并发使用
type Translator struct {
	table *mapping.Table
}

func NewTranslator(table *mapping.Table) *Translator {
	return &Translator{table: table}
}

// Translate 翻译谓词，参数按访问顺序命名为 p0, p1, ...
// 不修改输入，每次调用都返回新的片段
func (t *Translator) Translate(node Node) (*Fragment, error) {
	tr := &translation{
		table:      t.table,
		dialect:    t.table.Dialect(),
		parameters: bind.New(),
	}
	statement, op, err := tr.visit(node)
	if err != nil {
		return nil, err
	}
	return &Fragment{
		statement:  statement,
		parameters: tr.parameters,
		operator:   op,
		dialect:    tr.dialect,
	}, nil
}

// translation 单次翻译的状态
type translation struct {
	table      *mapping.Table
	dialect    *dialect.Dialect
	parameters *bind.Parameters
}

// visit 返回片段文本以及片段最外层的逻辑运算符，没有时为 0
func (t *translation) visit(node Node) (string, LogicalOperator, error) {
	if isNilNode(node) {
		return "", 0, &TranslationError{Kind: "nil", Reason: "predicate is nil"}
	}
	switch n := node.(type) {
	case *Comparison:
		s, err := t.comparison(n)
		return s, 0, err
	case *NullCheck:
		column, err := t.column(n.Member, KindNullCheck)
		if err != nil {
			return "", 0, err
		}
		if n.Negated {
			return column + " is not null", 0, nil
		}
		return column + " is null", 0, nil
	case *BooleanTerm:
		s, err := t.boolean(n, OpEq)
		return s, 0, err
	case *Negation:
		term, ok := n.Operand.(*BooleanTerm)
		if !ok {
			return "", 0, &TranslationError{Kind: KindNegation, Reason: fmt.Sprintf("negation of %s is not supported", kindOf(n.Operand))}
		}
		s, err := t.boolean(term, OpNe)
		return s, 0, err
	case *Logical:
		return t.logical(n)
	case *Membership:
		return t.membership(n)
	}
	return "", 0, &TranslationError{Kind: kindOf(node), Reason: "unsupported node"}
}

func (t *translation) comparison(n *Comparison) (string, error) {
	if !n.Operator.valid() {
		return "", &TranslationError{Kind: KindComparison, Reason: fmt.Sprintf("unsupported operator %q", n.Operator)}
	}
	column, err := t.column(n.Member, KindComparison)
	if err != nil {
		return "", err
	}

	value, err := Evaluate(n.Value)
	if err != nil {
		return "", &TranslationError{Kind: KindComparison, Reason: fmt.Sprintf("evaluate value of %s", n.Member), Err: err}
	}
	if m, ok := value.(Member); ok {
		return "", &TranslationError{Kind: KindComparison, Reason: fmt.Sprintf("comparison between members %s and %s", n.Member, m)}
	}

	if isNull(value) {
		switch n.Operator {
		case OpEq:
			return column + " is null", nil
		case OpNe:
			return column + " is not null", nil
		}
		return "", &TranslationError{Kind: KindComparison, Reason: fmt.Sprintf("operator %s with null", n.Operator)}
	}

	return column + " " + string(n.Operator) + " " + t.bind(value), nil
}

func (t *translation) boolean(n *BooleanTerm, op Operator) (string, error) {
	column, err := t.column(n.Member, KindBoolean)
	if err != nil {
		return "", err
	}
	return column + " " + string(op) + " " + t.bind(true), nil
}

// logical 子片段的最外层运算符与当前运算符不同时加括号
func (t *translation) logical(n *Logical) (string, LogicalOperator, error) {
	if n.Operator != LogicalAnd && n.Operator != LogicalOr {
		return "", 0, &TranslationError{Kind: n.Kind(), Reason: fmt.Sprintf("unsupported logical operator %d", n.Operator)}
	}
	left, leftOp, err := t.visit(n.Left)
	if err != nil {
		return "", 0, err
	}
	right, rightOp, err := t.visit(n.Right)
	if err != nil {
		return "", 0, err
	}
	return join(n.Operator, left, leftOp, right, rightOp), n.Operator, nil
}

func join(op LogicalOperator, left string, leftOp LogicalOperator, right string, rightOp LogicalOperator) string {
	if leftOp != 0 && leftOp != op {
		left = "(" + left + ")"
	}
	if rightOp != 0 && rightOp != op {
		right = "(" + right + ")"
	}
	return left + " " + op.String() + " " + right
}

// membership 超过 in 子句上限时按上限分块，用 or 连接
// 不足一块的余数排在最前，其余按原顺序
func (t *translation) membership(n *Membership) (string, LogicalOperator, error) {
	column, err := t.column(n.Member, KindMembership)
	if err != nil {
		return "", 0, err
	}
	v, err := Evaluate(n.Values)
	if err != nil {
		return "", 0, &TranslationError{Kind: KindMembership, Reason: fmt.Sprintf("evaluate values of %s", n.Member), Err: err}
	}
	values, err := toSlice(v)
	if err != nil {
		return "", 0, &TranslationError{Kind: KindMembership, Reason: err.Error()}
	}

	limit := t.dialect.InListLimit()
	if len(values) <= limit {
		return column + " in " + t.bind(values), 0, nil
	}

	var chunks [][]any
	for start := 0; start < len(values); start += limit {
		chunks = append(chunks, values[start:min(start+limit, len(values))])
	}
	if last := chunks[len(chunks)-1]; len(last) < limit {
		chunks = append([][]any{last}, chunks[:len(chunks)-1]...)
	}

	statement := ""
	for i, chunk := range chunks {
		if i > 0 {
			statement += " or "
		}
		statement += column + " in " + t.bind(chunk)
	}
	return statement, LogicalOr, nil
}

func (t *translation) column(member string, kind Kind) (string, error) {
	c, ok := t.table.Column(member)
	if !ok {
		return "", &TranslationError{Kind: kind, Reason: fmt.Sprintf("member %s is not mapped in %s", member, t.table.Name())}
	}
	return c.ColumnName(), nil
}

// bind 加入下一个 p<N> 参数，返回带前缀的参数名
func (t *translation) bind(value any) string {
	name := "p" + strconv.Itoa(t.parameters.Len())
	t.parameters.Set(name, value)
	return t.dialect.BindName(name)
}

func toSlice(v any) ([]any, error) {
	if v == nil {
		return []any{}, nil
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		copy(out, s)
		return out, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, errors.Errorf("byte slice %T is not a collection", v)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, errors.Errorf("values of type %T is not a collection", v)
}

func isNilNode(node Node) bool {
	if node == nil {
		return true
	}
	rv := reflect.ValueOf(node)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

func kindOf(node Node) Kind {
	if isNilNode(node) {
		return "nil"
	}
	if k := node.Kind(); k != "" {
		return k
	}
	return Kind(reflect.TypeOf(node).String())
}
