package mapping

import (
	"fmt"
	"reflect"

	"github.com/hatlonely/declsql/dialect"
	"github.com/pkg/errors"
)

// Column 列描述，构建后只读
type Column struct {
	memberName    string
	columnName    string
	autoIncrement bool
	createdAt     bool
	modifiedAt    bool
	defaultValue  string
	sequence      string
}

func (c *Column) MemberName() string { return c.memberName }

func (c *Column) ColumnName() string { return c.columnName }

func (c *Column) IsAutoIncrement() bool { return c.autoIncrement }

func (c *Column) IsCreatedAt() bool { return c.createdAt }

func (c *Column) IsModifiedAt() bool { return c.modifiedAt }

// DefaultValue 默认值 SQL 表达式，未设置时为空
func (c *Column) DefaultValue() string { return c.defaultValue }

// Sequence 取序列下一个值的 SQL 表达式，未设置时为空
func (c *Column) Sequence() string { return c.sequence }

// Table 某个类型在某个方言下的表描述，构建后只读
type Table struct {
	dialect  *dialect.Dialect
	typ      reflect.Type
	schema   string
	name     string
	fullName string
	columns  []*Column
	byMember map[string]*Column
}

func (t *Table) Dialect() *dialect.Dialect { return t.dialect }

func (t *Table) Type() reflect.Type { return t.typ }

func (t *Table) Schema() string { return t.schema }

func (t *Table) Name() string { return t.name }

// FullName 引用后的完整表名，如 [dbo].[Person]
func (t *Table) FullName() string { return t.fullName }

// Columns 按声明顺序返回所有列
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column 根据字段名查找列
func (t *Table) Column(member string) (*Column, bool) {
	c, ok := t.byMember[member]
	return c, ok
}

// NewTable 根据元数据构建指定方言下的表描述
func NewTable(t reflect.Type, md *Metadata, d *dialect.Dialect) (*Table, error) {
	if md == nil {
		return nil, &MappingError{Type: t, Reason: "metadata is nil"}
	}
	if d == nil {
		return nil, errors.New("dialect is nil")
	}

	kind := d.Kind()
	name := md.Name
	if name == "" && t != nil {
		name = t.Name()
	}
	schema := md.Schema
	if override, ok := md.Tables[kind]; ok {
		if override.Schema != "" {
			schema = override.Schema
		}
		if override.Name != "" {
			name = override.Name
		}
	}
	if schema == "" {
		schema = d.DefaultSchema()
	}
	if name == "" {
		return nil, &MappingError{Type: t, Reason: "table name is empty"}
	}

	table := &Table{
		dialect:  d,
		typ:      t,
		schema:   schema,
		name:     name,
		fullName: d.QualifiedName(schema, name),
		columns:  make([]*Column, 0, len(md.Columns)),
		byMember: make(map[string]*Column, len(md.Columns)),
	}

	for _, cm := range md.Columns {
		if cm.Member == "" {
			return nil, &MappingError{Type: t, Reason: "column member name is empty"}
		}
		if _, exists := table.byMember[cm.Member]; exists {
			return nil, &MappingError{Type: t, Reason: fmt.Sprintf("duplicate member %q", cm.Member)}
		}

		column, err := newColumn(cm, d)
		if err != nil {
			return nil, &MappingError{Type: t, Reason: err.Error()}
		}
		table.columns = append(table.columns, column)
		table.byMember[cm.Member] = column
	}

	return table, nil
}

func newColumn(cm ColumnMetadata, d *dialect.Dialect) (*Column, error) {
	kind := d.Kind()

	columnName := cm.Member
	if cm.Column != "" {
		columnName = cm.Column
	}
	if v, ok := cm.Columns[kind]; ok && v != "" {
		columnName = v
	}

	defaultValue := cm.Default
	if v, ok := cm.Defaults[kind]; ok {
		defaultValue = v
	}

	// 只对支持序列的数据库生成序列表达式
	var sequence string
	if d.SupportsSequence() {
		name := cm.Sequence
		if v, ok := cm.Sequences[kind]; ok {
			name = v
		}
		if name != "" {
			expr, err := d.SequenceNextValue(name)
			if err != nil {
				return nil, errors.WithMessagef(err, "column %s", cm.Member)
			}
			sequence = expr
		}
	}

	return &Column{
		memberName:    cm.Member,
		columnName:    columnName,
		autoIncrement: cm.AutoIncrement,
		createdAt:     cm.CreatedAt,
		modifiedAt:    cm.ModifiedAt,
		defaultValue:  defaultValue,
		sequence:      sequence,
	}, nil
}
