package operation

import (
	"database/sql"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/declsql/mapping"
	"github.com/pkg/errors"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// sqlite 等驱动以字符串返回时间
var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// fieldIndexes 结果列到结构体字段的映射，列名按成员名匹配，大小写不敏感
func fieldIndexes(table *mapping.Table, columns []string) [][]int {
	t := table.Type()
	members := make(map[string][]int, len(columns))
	for _, col := range table.Columns() {
		if f, ok := t.FieldByName(col.MemberName()); ok {
			members[strings.ToLower(col.MemberName())] = f.Index
		}
	}
	indexes := make([][]int, len(columns))
	for i, name := range columns {
		indexes[i] = members[strings.ToLower(name)]
	}
	return indexes
}

func scanRows[T any](rows *sql.Rows, table *mapping.Table) ([]*T, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}
	indexes := fieldIndexes(table, columns)

	var result []*T
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}

		item := new(T)
		rv := reflect.ValueOf(item).Elem()
		for i, index := range indexes {
			if index == nil || values[i] == nil {
				continue
			}
			if err := setFieldValue(fieldByIndex(rv, index), values[i]); err != nil {
				return nil, errors.WithMessagef(err, "column %s", columns[i])
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return result, nil
}

// fieldByIndex 沿途遇到空的嵌入指针时分配
func fieldByIndex(rv reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv
}

// setFieldValue 将驱动返回的值写入字段
func setFieldValue(fieldValue reflect.Value, value any) error {
	if value == nil {
		return nil
	}

	if fieldValue.CanAddr() && fieldValue.Addr().Type().Implements(scannerType) {
		return fieldValue.Addr().Interface().(sql.Scanner).Scan(value)
	}

	if fieldValue.Kind() == reflect.Ptr {
		elem := reflect.New(fieldValue.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		fieldValue.Set(elem)
		return nil
	}

	fieldType := fieldValue.Type()

	// 整数形式的布尔值
	if fieldType.Kind() == reflect.Bool {
		switch v := value.(type) {
		case bool:
			fieldValue.SetBool(v)
			return nil
		case int64:
			fieldValue.SetBool(v != 0)
			return nil
		case []byte:
			b, err := strconv.ParseBool(string(v))
			if err != nil {
				return errors.Wrapf(err, "parse bool %q", v)
			}
			fieldValue.SetBool(b)
			return nil
		}
	}

	if fieldType == timeType {
		switch v := value.(type) {
		case time.Time:
			fieldValue.Set(reflect.ValueOf(v))
			return nil
		case string:
			return setTime(fieldValue, v)
		case []byte:
			return setTime(fieldValue, string(v))
		}
	}

	// mysql 未开启 parseTime 或文本协议时数字和字符串以 []byte 返回
	if b, ok := value.([]byte); ok && fieldType.Kind() != reflect.Slice {
		return setFromText(fieldValue, string(b))
	}

	valueType := reflect.TypeOf(value)
	if valueType.AssignableTo(fieldType) {
		fieldValue.Set(reflect.ValueOf(value))
		return nil
	}
	if isNumeric(valueType.Kind()) && isNumeric(fieldType.Kind()) ||
		valueType.Kind() == fieldType.Kind() && valueType.ConvertibleTo(fieldType) {
		fieldValue.Set(reflect.ValueOf(value).Convert(fieldType))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", valueType, fieldType)
}

func setTime(fieldValue reflect.Value, s string) error {
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			fieldValue.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return errors.Errorf("cannot parse time %q", s)
}

func setFromText(fieldValue reflect.Value, s string) error {
	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, fieldValue.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "parse int %q", s)
		}
		fieldValue.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, fieldValue.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "parse uint %q", s)
		}
		fieldValue.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, fieldValue.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "parse float %q", s)
		}
		fieldValue.SetFloat(f)
	default:
		return errors.Errorf("cannot convert text to %v", fieldValue.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
