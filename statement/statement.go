package statement

import (
	"reflect"
	"strings"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/mapping"
	"github.com/hatlonely/declsql/predicate"
	"github.com/pkg/errors"
)

// Query 生成的 SQL 文本和绑定参数
type Query struct {
	Statement  string
	Parameters *bind.Parameters
}

// ValuePriority 创建时间、更新时间列的取值来源
type ValuePriority int

const (
	// PriorityData 使用调用方数据中的值
	PriorityData ValuePriority = iota
	// PriorityAttribute 使用映射元数据中的默认值表达式
	PriorityAttribute
)

const indent = "    "

// QueryBuilder 绑定方言和表描述缓存，生成各类语句
type QueryBuilder struct {
	dialect *dialect.Dialect
	cache   *mapping.Cache
}

// NewQueryBuilder cache 为空时使用 mapping.Default()
func NewQueryBuilder(d *dialect.Dialect, cache *mapping.Cache) *QueryBuilder {
	if cache == nil {
		cache = mapping.Default()
	}
	return &QueryBuilder{dialect: d, cache: cache}
}

func (qb *QueryBuilder) Dialect() *dialect.Dialect { return qb.dialect }

func (qb *QueryBuilder) Cache() *mapping.Cache { return qb.cache }

// Table 获取类型在当前方言下的表描述
func (qb *QueryBuilder) Table(t reflect.Type) (*mapping.Table, error) {
	if qb.dialect == nil {
		return nil, errors.New("dialect is nil")
	}
	return qb.cache.Get(t, qb.dialect.Kind())
}

// Where 单独翻译 T 上的谓词
func Where[T any](qb *QueryBuilder, node predicate.Node) (*predicate.Fragment, error) {
	table, err := qb.Table(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return predicate.NewTranslator(table).Translate(node)
}

// condition 语句的可选 where 条件
type condition struct {
	node     predicate.Node
	fragment *predicate.Fragment
}

func (c *condition) set(node predicate.Node) {
	c.node, c.fragment = node, nil
}

func (c *condition) setFragment(f *predicate.Fragment) {
	c.node, c.fragment = nil, f
}

// appendTo 追加 where 子句，片段参数加入 parameters，名称冲突时返回错误
func (c *condition) appendTo(sb *strings.Builder, table *mapping.Table, parameters *bind.Parameters) error {
	fragment := c.fragment
	if fragment == nil {
		if c.node == nil {
			return nil
		}
		f, err := predicate.NewTranslator(table).Translate(c.node)
		if err != nil {
			return err
		}
		fragment = f
	}
	if fragment.Dialect() != table.Dialect() {
		return errors.Errorf("fragment dialect %s does not match %s", fragment.Dialect(), table.Dialect())
	}

	for name, value := range fragment.Parameters().All() {
		if err := parameters.Add(name, value); err != nil {
			return errors.WithMessage(err, "merge where parameters")
		}
	}
	sb.WriteString("\nwhere\n")
	sb.WriteString(indent)
	sb.WriteString(fragment.Statement())
	return nil
}

// writeList 每项一行，项之间用逗号分隔
func writeList(sb *strings.Builder, items []string) {
	for i, item := range items {
		sb.WriteString("\n")
		sb.WriteString(indent)
		sb.WriteString(item)
		if i < len(items)-1 {
			sb.WriteString(",")
		}
	}
}

func ready(table *mapping.Table, err error) error {
	if err != nil {
		return err
	}
	if table == nil {
		return errors.New("table is nil")
	}
	return nil
}

func tableOf[T any](qb *QueryBuilder) (*mapping.Table, error) {
	return qb.Table(reflect.TypeFor[T]())
}
