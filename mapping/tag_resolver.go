package mapping

import (
	"reflect"
	"strings"

	"github.com/hatlonely/declsql/dialect"
	"github.com/pkg/errors"
)

// TableNamer 自定义表名，返回值可以是 "schema.name" 形式
type TableNamer interface {
	TableName() string
}

// TagResolver 从结构体 tag 解析映射元数据
// 支持的 tag 格式：
//   - `table:"[schema.]name,sqlserver=[schema.]name"` 写在任意字段上（通常是 `_ struct{}`），指定表名
//   - `rdb:"column_name,autoIncrement,createdAt,modifiedAt,default=...,default@mysql=...,sequence=...,column@oracle=..."`
//   - `rdb:"-"` 跳过字段
//
// 第一个不含 = 的部分是列名，为空时使用字段名；匿名嵌入的结构体字段会被展开
type TagResolver struct{}

func NewTagResolver() *TagResolver {
	return &TagResolver{}
}

func (r *TagResolver) Resolve(t reflect.Type) (*Metadata, error) {
	t = indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, &MappingError{Type: t, Reason: "expected struct type"}
	}

	md := &Metadata{Name: t.Name()}
	if err := r.parseTable(t, md); err != nil {
		return nil, &MappingError{Type: t, Reason: err.Error()}
	}
	// 实现了 TableName() 的类型以方法返回值为准
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			md.Schema, md.Name = dialect.SplitQualifiedName(name)
		}
	}
	if err := r.parseColumns(t, md, map[reflect.Type]bool{t: true}); err != nil {
		return nil, &MappingError{Type: t, Reason: err.Error()}
	}
	return md, nil
}

// parseTable 查找 table tag
func (r *TagResolver) parseTable(t reflect.Type, md *Metadata) error {
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("table")
		if !ok || tag == "" {
			continue
		}

		parts := strings.Split(tag, ",")
		if first := strings.TrimSpace(parts[0]); first != "" && !strings.Contains(first, "=") {
			md.Schema, md.Name = dialect.SplitQualifiedName(first)
			parts = parts[1:]
		}
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			kv := strings.SplitN(part, "=", 2)
			if len(kv) != 2 {
				return errors.Errorf("invalid table option %q", part)
			}
			kind, err := parseKind(kv[0])
			if err != nil {
				return err
			}
			schema, name := dialect.SplitQualifiedName(strings.TrimSpace(kv[1]))
			if md.Tables == nil {
				md.Tables = make(map[dialect.Kind]TableOverride)
			}
			md.Tables[kind] = TableOverride{Schema: schema, Name: name}
		}
		return nil
	}
	return nil
}

func (r *TagResolver) parseColumns(t reflect.Type, md *Metadata, visiting map[reflect.Type]bool) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if _, ok := field.Tag.Lookup("table"); ok && field.Name == "_" {
			continue
		}

		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		// 展开匿名嵌入的结构体
		if field.Anonymous && tag == "" {
			ft := indirect(field.Type)
			if ft.Kind() == reflect.Struct {
				if visiting[ft] {
					return errors.Errorf("recursive embedding of %s", ft)
				}
				visiting[ft] = true
				if err := r.parseColumns(ft, md, visiting); err != nil {
					return err
				}
				delete(visiting, ft)
				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		cm, err := r.parseColumnTag(field, tag)
		if err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
		md.Columns = append(md.Columns, cm)
	}
	return nil
}

// parseColumnTag 解析字段的 rdb tag
func (r *TagResolver) parseColumnTag(field reflect.StructField, tag string) (ColumnMetadata, error) {
	cm := ColumnMetadata{Member: field.Name}
	if tag == "" {
		return cm, nil
	}

	parts := strings.Split(tag, ",")
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		cm.Column = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "=") {
			switch part {
			case "autoIncrement", "auto_increment", "identity":
				cm.AutoIncrement = true
			case "createdAt", "created_at":
				cm.CreatedAt = true
			case "modifiedAt", "modified_at":
				cm.ModifiedAt = true
			default:
				return cm, errors.Errorf("unknown option %q", part)
			}
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])

		// key@kind 形式只对指定数据库生效
		var kind dialect.Kind
		if idx := strings.Index(key, "@"); idx != -1 {
			k, err := parseKind(key[idx+1:])
			if err != nil {
				return cm, err
			}
			key, kind = key[:idx], k
		}

		switch key {
		case "column":
			if kind == "" {
				cm.Column = value
			} else {
				cm.Columns = setKind(cm.Columns, kind, value)
			}
		case "default":
			if kind == "" {
				cm.Default = value
			} else {
				cm.Defaults = setKind(cm.Defaults, kind, value)
			}
		case "sequence":
			if kind == "" {
				cm.Sequence = value
			} else {
				cm.Sequences = setKind(cm.Sequences, kind, value)
			}
		default:
			return cm, errors.Errorf("unknown option %q", key)
		}
	}

	return cm, nil
}

func parseKind(s string) (dialect.Kind, error) {
	d, err := dialect.ByKind(dialect.Kind(strings.ToLower(strings.TrimSpace(s))))
	if err != nil {
		return "", errors.Errorf("unknown database kind %q", s)
	}
	return d.Kind(), nil
}

func setKind(m map[dialect.Kind]string, kind dialect.Kind, value string) map[dialect.Kind]string {
	if m == nil {
		m = make(map[dialect.Kind]string)
	}
	m[kind] = value
	return m
}
