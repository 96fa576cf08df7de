package predicate

import (
	"regexp"
	"strconv"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/dialect"
	"github.com/pkg/errors"
)

// Fragment SQL 条件片段及其绑定参数
type Fragment struct {
	statement  string
	parameters *bind.Parameters
	operator   LogicalOperator
	dialect    *dialect.Dialect
}

func (f *Fragment) Statement() string { return f.statement }

// Parameters 返回片段的参数，调用方需要修改时应先 Clone
func (f *Fragment) Parameters() *bind.Parameters { return f.parameters }

func (f *Fragment) Dialect() *dialect.Dialect { return f.dialect }

func (f *Fragment) String() string { return f.statement }

// And 用 and 组合两个片段，右侧片段的参数重新编号
func (f *Fragment) And(other *Fragment) (*Fragment, error) {
	return f.combine(LogicalAnd, other)
}

// Or 用 or 组合两个片段，右侧片段的参数重新编号
func (f *Fragment) Or(other *Fragment) (*Fragment, error) {
	return f.combine(LogicalOr, other)
}

func (f *Fragment) combine(op LogicalOperator, other *Fragment) (*Fragment, error) {
	if other == nil {
		return nil, errors.New("fragment is nil")
	}
	if f.dialect != other.dialect {
		return nil, errors.Errorf("cannot combine fragments of %s and %s", f.dialect, other.dialect)
	}

	offset := f.parameters.Len()
	parameters := f.parameters.Clone()
	renamed := make(map[string]string, other.parameters.Len())
	for name, value := range other.parameters.All() {
		newName := renumber(name, offset)
		renamed[name] = newName
		if err := parameters.Add(newName, value); err != nil {
			return nil, errors.WithMessage(err, "combine fragments")
		}
	}

	prefix := f.dialect.BindParameterPrefix()
	re := regexp.MustCompile(regexp.QuoteMeta(prefix) + `(p\d+)\b`)
	right := re.ReplaceAllStringFunc(other.statement, func(token string) string {
		if newName, ok := renamed[token[len(prefix):]]; ok {
			return prefix + newName
		}
		return token
	})

	return &Fragment{
		statement:  join(op, f.statement, f.operator, right, other.operator),
		parameters: parameters,
		operator:   op,
		dialect:    f.dialect,
	}, nil
}

// renumber p<N> 加上偏移量，其他名称保持不变
func renumber(name string, offset int) string {
	if len(name) < 2 || name[0] != 'p' {
		return name
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return name
	}
	return "p" + strconv.Itoa(n+offset)
}
