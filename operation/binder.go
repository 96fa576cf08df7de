package operation

import (
	"database/sql/driver"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/dialect"
	"github.com/pkg/errors"
)

// bindQuery 将语句中的命名参数改写为驱动占位符，返回按顺序排列的参数
// 引号和方括号内的内容原样保留，切片参数展开为 (?, ?, ...)，空切片展开为 (null)
func bindQuery(d *dialect.Dialect, query string, params *bind.Parameters) (string, []any, error) {
	prefix := d.BindParameterPrefix()
	brackets := d.Bracket().Begin == "["

	var sb strings.Builder
	sb.Grow(len(query))
	var args []any

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || (c == '[' && brackets):
			closing := c
			if c == '[' {
				closing = ']'
			}
			end := strings.IndexByte(query[i+1:], closing)
			if end < 0 {
				return "", nil, errors.Errorf("unterminated %c at offset %d", c, i)
			}
			sb.WriteString(query[i : i+end+2])
			i += end + 2

		case strings.HasPrefix(query[i:], prefix):
			// ::type 类型转换和 @@variable 系统变量
			if strings.HasPrefix(query[i+len(prefix):], prefix) {
				sb.WriteString(query[i : i+2*len(prefix)])
				i += 2 * len(prefix)
				continue
			}
			name := identifier(query[i+len(prefix):])
			if name == "" {
				sb.WriteString(prefix)
				i += len(prefix)
				continue
			}
			value, ok := params.Get(name)
			if !ok {
				return "", nil, errors.Errorf("parameter %s%s is not bound", prefix, name)
			}
			args = writeValue(&sb, d, value, args)
			i += len(prefix) + len(name)

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), args, nil
}

// writeValue 实现 driver.Valuer 的切片类型不展开
func writeValue(sb *strings.Builder, d *dialect.Dialect, value any, args []any) []any {
	rv := reflect.ValueOf(value)
	if _, ok := value.(driver.Valuer); ok || !expandable(rv) {
		sb.WriteString(d.Placeholder(len(args)))
		return append(args, value)
	}
	if rv.Len() == 0 {
		sb.WriteString("(null)")
		return args
	}
	sb.WriteByte('(')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Placeholder(len(args)))
		args = append(args, rv.Index(i).Interface())
	}
	sb.WriteByte(')')
	return args
}

// expandable []byte 作为单个值绑定
func expandable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

func identifier(s string) string {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	return s[:n]
}
