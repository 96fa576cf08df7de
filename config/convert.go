package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Convert 将解码后的通用数据转换到 v 指向的对象
func Convert(src any, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}
	return convertValue(src, rv.Elem(), "")
}

func convertValue(src any, dst reflect.Value, path string) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convertValue(src, dst.Elem(), path)
	}

	for srcValue.Kind() == reflect.Ptr || srcValue.Kind() == reflect.Interface {
		if srcValue.IsNil() {
			return nil
		}
		srcValue = srcValue.Elem()
	}

	switch dst.Type() {
	case durationType:
		return convertToDuration(srcValue, dst, path)
	case timeType:
		return convertToTime(srcValue, dst, path)
	}

	if srcValue.Type().AssignableTo(dst.Type()) {
		dst.Set(srcValue)
		return nil
	}

	switch dst.Kind() {
	case reflect.Map:
		return convertToMap(srcValue, dst, path)
	case reflect.Slice:
		return convertToSlice(srcValue, dst, path)
	case reflect.Struct:
		return convertToStruct(srcValue, dst, path)
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(srcValue)
			return nil
		}
	case reflect.Bool, reflect.String:
		// 避免数字被转换成字符
		if srcValue.Kind() != dst.Kind() {
			return errors.Errorf("%s: cannot convert %v to %v", pathOrRoot(path), srcValue.Type(), dst.Type())
		}
	}

	if srcValue.Type().ConvertibleTo(dst.Type()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("%s: cannot convert %v to %v", pathOrRoot(path), srcValue.Type(), dst.Type())
}

// convertToDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertToDuration(src, dst reflect.Value, path string) error {
	switch src.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(src.String())
		if err != nil {
			return errors.Wrapf(err, "%s: parse duration", pathOrRoot(path))
		}
		dst.SetInt(int64(d))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(src.Uint()))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return errors.Errorf("%s: cannot convert %v to time.Duration", pathOrRoot(path), src.Type())
}

// convertToTime 整数和浮点数视为 Unix 秒
func convertToTime(src, dst reflect.Value, path string) error {
	switch src.Kind() {
	case reflect.String:
		for _, layout := range timeFormats {
			if t, err := time.Parse(layout, src.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("%s: cannot parse time %q", pathOrRoot(path), src.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0)))
		return nil
	case reflect.Float32, reflect.Float64:
		sec := src.Float()
		dst.Set(reflect.ValueOf(time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))))
		return nil
	case reflect.Struct:
		if src.Type() == timeType {
			dst.Set(src)
			return nil
		}
	}
	return errors.Errorf("%s: cannot convert %v to time.Time", pathOrRoot(path), src.Type())
}

func convertToMap(src, dst reflect.Value, path string) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("%s: expected map, got %v", pathOrRoot(path), src.Type())
	}
	keyType := dst.Type().Key()
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
	}
	iter := src.MapRange()
	for iter.Next() {
		key := iter.Key()
		for key.Kind() == reflect.Interface {
			key = key.Elem()
		}
		if !key.Type().ConvertibleTo(keyType) {
			return errors.Errorf("%s: cannot convert key %v to %v", pathOrRoot(path), key.Type(), keyType)
		}
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(iter.Value().Interface(), elem, join(path, key.String())); err != nil {
			return err
		}
		dst.SetMapIndex(key.Convert(keyType), elem)
	}
	return nil
}

func convertToSlice(src, dst reflect.Value, path string) error {
	// ini 中的列表写作逗号分隔的字符串
	if src.Kind() == reflect.String {
		parts := strings.Split(src.String(), ",")
		items := make([]any, len(parts))
		for i, part := range parts {
			items[i] = parseINIValue(part)
		}
		src = reflect.ValueOf(items)
	}
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("%s: expected list, got %v", pathOrRoot(path), src.Type())
	}
	out := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
	for i := 0; i < src.Len(); i++ {
		if err := convertValue(src.Index(i).Interface(), out.Index(i), join(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

// convertToStruct 按 cfg tag 匹配键名，没有 tag 时使用字段名，大小写不敏感
func convertToStruct(src, dst reflect.Value, path string) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("%s: expected map, got %v", pathOrRoot(path), src.Type())
	}

	values := make(map[string]reflect.Value, src.Len())
	iter := src.MapRange()
	for iter.Next() {
		key := iter.Key()
		for key.Kind() == reflect.Interface {
			key = key.Elem()
		}
		if key.Kind() == reflect.String {
			values[strings.ToLower(key.String())] = iter.Value()
		}
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name, ok := fieldName(field)
		if !ok {
			continue
		}
		if field.Anonymous && field.Tag.Get("cfg") == "" {
			if err := convertValue(src.Interface(), fieldValue, path); err != nil {
				return err
			}
			continue
		}

		value, ok := values[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := convertValue(value.Interface(), fieldValue, join(path, name)); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(field reflect.StructField) (string, bool) {
	tag := strings.Split(field.Tag.Get("cfg"), ",")[0]
	switch tag {
	case "-":
		return "", false
	case "":
		return field.Name, true
	}
	return tag, true
}

func join(path, key string) string {
	if path == "" || strings.HasPrefix(key, "[") {
		return path + key
	}
	return path + "." + key
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
