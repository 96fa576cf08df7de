package predicate

// Kind 节点类型，出现在 TranslationError 中
type Kind string

const (
	KindComparison Kind = "Comparison"
	KindNullCheck  Kind = "NullCheck"
	KindBoolean    Kind = "BooleanTerm"
	KindNegation   Kind = "Negation"
	KindAnd        Kind = "And"
	KindOr         Kind = "Or"
	KindMembership Kind = "Membership"
)

// Node 谓词语法树节点
type Node interface {
	Kind() Kind
}

// Operator 比较运算符，值即 SQL 运算符
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "<>"
	OpGt Operator = ">"
	OpGe Operator = ">="
	OpLt Operator = "<"
	OpLe Operator = "<="
)

func (o Operator) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		return true
	}
	return false
}

// Member 对映射字段的引用，只能出现在比较的左侧
type Member string

// Comparison 字段与值的比较，Value 在翻译时求值
type Comparison struct {
	Member   string
	Operator Operator
	Value    any
}

// NullCheck 字段是否为 null
type NullCheck struct {
	Member  string
	Negated bool
}

// BooleanTerm 布尔字段直接作为条件
type BooleanTerm struct {
	Member string
}

// Negation 逻辑非，目前只支持作用于 BooleanTerm
type Negation struct {
	Operand Node
}

// LogicalOperator 逻辑运算符
type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota + 1
	LogicalOr
)

func (o LogicalOperator) String() string {
	switch o {
	case LogicalAnd:
		return "and"
	case LogicalOr:
		return "or"
	}
	return ""
}

// Logical 两个子条件的 and/or 组合
type Logical struct {
	Operator LogicalOperator
	Left     Node
	Right    Node
}

// Membership 字段值属于集合，对应 in 子句
// Values 可以是切片、数组或求值后得到切片的 Evaluator
type Membership struct {
	Member string
	Values any
}

func (*Comparison) Kind() Kind { return KindComparison }
func (*NullCheck) Kind() Kind { return KindNullCheck }
func (*BooleanTerm) Kind() Kind { return KindBoolean }
func (*Negation) Kind() Kind { return KindNegation }
func (*Membership) Kind() Kind { return KindMembership }

func (l *Logical) Kind() Kind {
	if l.Operator == LogicalOr {
		return KindOr
	}
	return KindAnd
}

func Eq(member string, value any) Node { return &Comparison{Member: member, Operator: OpEq, Value: value} }
func Ne(member string, value any) Node { return &Comparison{Member: member, Operator: OpNe, Value: value} }
func Gt(member string, value any) Node { return &Comparison{Member: member, Operator: OpGt, Value: value} }
func Ge(member string, value any) Node { return &Comparison{Member: member, Operator: OpGe, Value: value} }
func Lt(member string, value any) Node { return &Comparison{Member: member, Operator: OpLt, Value: value} }
func Le(member string, value any) Node { return &Comparison{Member: member, Operator: OpLe, Value: value} }

func IsNull(member string) Node { return &NullCheck{Member: member} }
func IsNotNull(member string) Node { return &NullCheck{Member: member, Negated: true} }

// True 布尔字段为真，即 x.Flag
func True(member string) Node { return &BooleanTerm{Member: member} }

// False 布尔字段为假，即 !x.Flag
func False(member string) Node { return Not(True(member)) }

func Not(operand Node) Node { return &Negation{Operand: operand} }

// In 字段值属于集合，即 values.Contains(x.Member)
func In(member string, values any) Node { return &Membership{Member: member, Values: values} }

// And 从左到右组合，And(a, b, c) 等价于 (a && b) && c
func And(nodes ...Node) Node { return fold(LogicalAnd, nodes) }

// Or 从左到右组合，Or(a, b, c) 等价于 (a || b) || c
func Or(nodes ...Node) Node { return fold(LogicalOr, nodes) }

func fold(op LogicalOperator, nodes []Node) Node {
	if len(nodes) == 0 {
		return nil
	}
	node := nodes[0]
	for _, right := range nodes[1:] {
		node = &Logical{Operator: op, Left: node, Right: right}
	}
	return node
}
