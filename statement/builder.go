package statement

import (
	"strings"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/mapping"
	"github.com/hatlonely/declsql/predicate"
	"github.com/pkg/errors"
)

// CountBuilder select count(*)
type CountBuilder struct {
	table *mapping.Table
	err   error
	where condition
}

func Count[T any](qb *QueryBuilder) *CountBuilder {
	table, err := tableOf[T](qb)
	return &CountBuilder{table: table, err: err}
}

func NewCountBuilder(table *mapping.Table) *CountBuilder {
	return &CountBuilder{table: table}
}

func (b *CountBuilder) Where(node predicate.Node) *CountBuilder {
	b.where.set(node)
	return b
}

func (b *CountBuilder) WhereFragment(f *predicate.Fragment) *CountBuilder {
	b.where.setFragment(f)
	return b
}

func (b *CountBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}
	var sb strings.Builder
	parameters := bind.New()
	sb.WriteString("select count(*) as Count from ")
	sb.WriteString(b.table.FullName())
	if err := b.where.appendTo(&sb, b.table, parameters); err != nil {
		return nil, err
	}
	return &Query{Statement: sb.String(), Parameters: parameters}, nil
}

// SelectBuilder 查询列，未指定字段时按声明顺序列出所有列
type SelectBuilder struct {
	table   *mapping.Table
	err     error
	members []string
	where   condition
}

// Select members 不为空时只查询这些字段，并保持给定顺序
func Select[T any](qb *QueryBuilder, members ...string) *SelectBuilder {
	table, err := tableOf[T](qb)
	return &SelectBuilder{table: table, err: err, members: members}
}

func NewSelectBuilder(table *mapping.Table, members ...string) *SelectBuilder {
	return &SelectBuilder{table: table, members: members}
}

func (b *SelectBuilder) Where(node predicate.Node) *SelectBuilder {
	b.where.set(node)
	return b
}

func (b *SelectBuilder) WhereFragment(f *predicate.Fragment) *SelectBuilder {
	b.where.setFragment(f)
	return b
}

func (b *SelectBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}

	columns := b.table.Columns()
	if len(b.members) > 0 {
		columns = make([]*mapping.Column, 0, len(b.members))
		for _, member := range b.members {
			c, ok := b.table.Column(member)
			if !ok {
				return nil, errors.Errorf("member %s is not mapped in %s", member, b.table.Name())
			}
			columns = append(columns, c)
		}
	}
	if len(columns) == 0 {
		return nil, errors.Errorf("no columns to select from %s", b.table.Name())
	}

	d := b.table.Dialect()
	items := make([]string, len(columns))
	for i, c := range columns {
		items[i] = d.Quote(c.ColumnName()) + " as " + c.MemberName()
	}

	var sb strings.Builder
	parameters := bind.New()
	sb.WriteString("select")
	writeList(&sb, items)
	sb.WriteString("\nfrom ")
	sb.WriteString(b.table.FullName())
	if err := b.where.appendTo(&sb, b.table, parameters); err != nil {
		return nil, err
	}
	return &Query{Statement: sb.String(), Parameters: parameters}, nil
}

// InsertOptions 插入语句选项
type InsertOptions struct {
	// Priority 创建时间、更新时间列的取值来源
	Priority ValuePriority
	// DisableSequence 不使用序列，改为绑定参数
	DisableSequence bool
	// Identity 包含自增列
	Identity bool
	// Keyword 语句开头的关键字，默认 "insert into"
	Keyword string
}

type InsertOption func(*InsertOptions)

func WithValuePriority(priority ValuePriority) InsertOption {
	return func(o *InsertOptions) { o.Priority = priority }
}

func WithoutSequence() InsertOption {
	return func(o *InsertOptions) { o.DisableSequence = true }
}

func WithIdentity() InsertOption {
	return func(o *InsertOptions) { o.Identity = true }
}

// WithKeyword 替换 "insert into"，如 "insert ignore into"
func WithKeyword(keyword string) InsertOption {
	return func(o *InsertOptions) { o.Keyword = keyword }
}

// InsertBuilder 插入所有非自增列，值由执行时的记录提供
type InsertBuilder struct {
	table   *mapping.Table
	err     error
	options InsertOptions
}

func Insert[T any](qb *QueryBuilder, opts ...InsertOption) *InsertBuilder {
	table, err := tableOf[T](qb)
	b := NewInsertBuilder(table, opts...)
	b.err = err
	return b
}

func NewInsertBuilder(table *mapping.Table, opts ...InsertOption) *InsertBuilder {
	b := &InsertBuilder{table: table, options: InsertOptions{Keyword: "insert into"}}
	for _, opt := range opts {
		opt(&b.options)
	}
	return b
}

func (b *InsertBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}

	d := b.table.Dialect()
	parameters := bind.New()
	var columns, values []string
	for _, c := range b.table.Columns() {
		if c.IsAutoIncrement() && !b.options.Identity {
			continue
		}
		columns = append(columns, d.Quote(c.ColumnName()))

		switch {
		case (c.IsCreatedAt() || c.IsModifiedAt()) && b.options.Priority == PriorityAttribute && c.DefaultValue() != "":
			values = append(values, c.DefaultValue())
		case c.Sequence() != "" && !b.options.DisableSequence:
			values = append(values, c.Sequence())
		default:
			values = append(values, d.BindName(c.MemberName()))
			if err := parameters.Add(c.MemberName(), nil); err != nil {
				return nil, err
			}
		}
	}
	if len(columns) == 0 {
		return nil, errors.Errorf("no columns to insert into %s", b.table.Name())
	}

	var sb strings.Builder
	sb.WriteString(b.options.Keyword)
	sb.WriteString(" ")
	sb.WriteString(b.table.FullName())
	sb.WriteString("\n(")
	writeList(&sb, columns)
	sb.WriteString("\n)\nvalues\n(")
	writeList(&sb, values)
	sb.WriteString("\n)")
	return &Query{Statement: sb.String(), Parameters: parameters}, nil
}

// UpdateOptions 更新语句选项
type UpdateOptions struct {
	// Members 只更新这些字段，不存在的字段被忽略
	Members []string
	// Priority 更新时间列的取值来源
	Priority ValuePriority
	// Identity 包含自增列
	Identity bool
}

type UpdateOption func(*UpdateOptions)

func WithMembers(members ...string) UpdateOption {
	return func(o *UpdateOptions) { o.Members = append(o.Members, members...) }
}

func WithUpdatePriority(priority ValuePriority) UpdateOption {
	return func(o *UpdateOptions) { o.Priority = priority }
}

func WithUpdateIdentity() UpdateOption {
	return func(o *UpdateOptions) { o.Identity = true }
}

// UpdateBuilder 更新列，列按声明顺序输出
type UpdateBuilder struct {
	table   *mapping.Table
	err     error
	options UpdateOptions
	where   condition
}

func Update[T any](qb *QueryBuilder, opts ...UpdateOption) *UpdateBuilder {
	table, err := tableOf[T](qb)
	b := NewUpdateBuilder(table, opts...)
	b.err = err
	return b
}

func NewUpdateBuilder(table *mapping.Table, opts ...UpdateOption) *UpdateBuilder {
	b := &UpdateBuilder{table: table}
	for _, opt := range opts {
		opt(&b.options)
	}
	return b
}

func (b *UpdateBuilder) Where(node predicate.Node) *UpdateBuilder {
	b.where.set(node)
	return b
}

func (b *UpdateBuilder) WhereFragment(f *predicate.Fragment) *UpdateBuilder {
	b.where.setFragment(f)
	return b
}

func (b *UpdateBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}

	var only map[string]bool
	if len(b.options.Members) > 0 {
		only = make(map[string]bool, len(b.options.Members))
		for _, m := range b.options.Members {
			only[m] = true
		}
	}

	d := b.table.Dialect()
	parameters := bind.New()
	var items []string
	for _, c := range b.table.Columns() {
		if c.IsAutoIncrement() && !b.options.Identity {
			continue
		}
		if only != nil && !only[c.MemberName()] {
			continue
		}

		value := d.BindName(c.MemberName())
		if c.IsModifiedAt() && b.options.Priority == PriorityAttribute && c.DefaultValue() != "" {
			value = c.DefaultValue()
		} else if err := parameters.Add(c.MemberName(), nil); err != nil {
			return nil, err
		}
		items = append(items, d.Quote(c.ColumnName())+" = "+value)
	}
	if len(items) == 0 {
		return nil, errors.Errorf("no columns to update in %s", b.table.Name())
	}

	var sb strings.Builder
	sb.WriteString("update ")
	sb.WriteString(b.table.FullName())
	sb.WriteString("\nset")
	writeList(&sb, items)
	if err := b.where.appendTo(&sb, b.table, parameters); err != nil {
		return nil, err
	}
	return &Query{Statement: sb.String(), Parameters: parameters}, nil
}

// DeleteBuilder delete from
type DeleteBuilder struct {
	table *mapping.Table
	err   error
	where condition
}

func Delete[T any](qb *QueryBuilder) *DeleteBuilder {
	table, err := tableOf[T](qb)
	return &DeleteBuilder{table: table, err: err}
}

func NewDeleteBuilder(table *mapping.Table) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (b *DeleteBuilder) Where(node predicate.Node) *DeleteBuilder {
	b.where.set(node)
	return b
}

func (b *DeleteBuilder) WhereFragment(f *predicate.Fragment) *DeleteBuilder {
	b.where.setFragment(f)
	return b
}

func (b *DeleteBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}
	var sb strings.Builder
	parameters := bind.New()
	sb.WriteString("delete from ")
	sb.WriteString(b.table.FullName())
	if err := b.where.appendTo(&sb, b.table, parameters); err != nil {
		return nil, err
	}
	return &Query{Statement: sb.String(), Parameters: parameters}, nil
}

// TruncateBuilder truncate table，不支持条件
type TruncateBuilder struct {
	table *mapping.Table
	err   error
}

func Truncate[T any](qb *QueryBuilder) *TruncateBuilder {
	table, err := tableOf[T](qb)
	return &TruncateBuilder{table: table, err: err}
}

func NewTruncateBuilder(table *mapping.Table) *TruncateBuilder {
	return &TruncateBuilder{table: table}
}

func (b *TruncateBuilder) Build() (*Query, error) {
	if err := ready(b.table, b.err); err != nil {
		return nil, err
	}
	return &Query{
		Statement:  "truncate table " + b.table.FullName(),
		Parameters: bind.New(),
	}, nil
}
