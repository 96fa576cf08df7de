package predicate

import (
	"reflect"

	"github.com/pkg/errors"
)

// Evaluator 在翻译时求值的右值，结果可以是另一个 Evaluator，会被递归求值
type Evaluator interface {
	Evaluate() (any, error)
}

// Func 函数形式的 Evaluator
type Func func() (any, error)

func (f Func) Evaluate() (any, error) {
	if f == nil {
		return nil, errEvaluatorNil
	}
	return f()
}

const maxEvaluateDepth = 64

var errEvaluatorNil = errors.New("evaluator is nil")

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Evaluate 将右值递归求值为具体的值
// 支持 Evaluator、func() any、func() (any, error)，其余值原样返回
func Evaluate(v any) (any, error) {
	for depth := 0; depth < maxEvaluateDepth; depth++ {
		var err error
		switch e := v.(type) {
		case Evaluator:
			v, err = e.Evaluate()
		case func() any:
			if e == nil {
				return nil, errEvaluatorNil
			}
			v = e()
		case func() (any, error):
			if e == nil {
				return nil, errEvaluatorNil
			}
			v, err = e()
		default:
			return v, nil
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, errors.Errorf("evaluation exceeds max depth %d", maxEvaluateDepth)
}

// Ref 捕获变量，翻译时读取指针指向的当前值
func Ref(ptr any) Evaluator {
	return Func(func() (any, error) {
		rv := reflect.ValueOf(ptr)
		if rv.Kind() != reflect.Ptr || rv.IsNil() {
			return nil, errors.Errorf("ref expects a non-nil pointer, got %T", ptr)
		}
		return rv.Elem().Interface(), nil
	})
}

// Call 调用函数或方法值，参数先递归求值
// fn 可以返回一个值，或者一个值加 error
func Call(fn any, args ...any) Evaluator {
	return Func(func() (any, error) {
		f, err := Evaluate(fn)
		if err != nil {
			return nil, err
		}
		rv := reflect.ValueOf(f)
		if rv.Kind() != reflect.Func || rv.IsNil() {
			return nil, errors.Errorf("call expects a function, got %T", f)
		}
		ft := rv.Type()

		if ft.IsVariadic() {
			if len(args) < ft.NumIn()-1 {
				return nil, errors.Errorf("call %s: expects at least %d arguments, got %d", ft, ft.NumIn()-1, len(args))
			}
		} else if len(args) != ft.NumIn() {
			return nil, errors.Errorf("call %s: expects %d arguments, got %d", ft, ft.NumIn(), len(args))
		}

		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			pt := paramType(ft, i)
			v, err := Evaluate(arg)
			if err != nil {
				return nil, errors.WithMessagef(err, "argument %d", i)
			}
			in[i], err = convert(v, pt)
			if err != nil {
				return nil, errors.WithMessagef(err, "argument %d", i)
			}
		}

		out := rv.Call(in)
		switch {
		case len(out) == 1:
			return out[0].Interface(), nil
		case len(out) == 2 && ft.Out(1).Implements(errorType):
			if !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		}
		return nil, errors.Errorf("call %s: expects (T) or (T, error) results", ft)
	})
}

// Index 下标访问，支持切片、数组、字符串和 map
func Index(collection any, key any) Evaluator {
	return Func(func() (any, error) {
		c, err := Evaluate(collection)
		if err != nil {
			return nil, err
		}
		k, err := Evaluate(key)
		if err != nil {
			return nil, err
		}

		rv := indirect(reflect.ValueOf(c))
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.String:
			kv, err := convert(k, reflect.TypeOf(0))
			if err != nil {
				return nil, err
			}
			i := int(kv.Int())
			if i < 0 || i >= rv.Len() {
				return nil, errors.Errorf("index %d out of range [0, %d)", i, rv.Len())
			}
			return rv.Index(i).Interface(), nil
		case reflect.Map:
			kv, err := convert(k, rv.Type().Key())
			if err != nil {
				return nil, err
			}
			v := rv.MapIndex(kv)
			if !v.IsValid() {
				return nil, errors.Errorf("key %v not found", k)
			}
			return v.Interface(), nil
		}
		return nil, errors.Errorf("index expects slice, array, string or map, got %T", c)
	})
}

// Field 属性访问，优先读取导出字段，其次调用同名无参方法
func Field(obj any, name string) Evaluator {
	return Func(func() (any, error) {
		o, err := Evaluate(obj)
		if err != nil {
			return nil, err
		}

		rv := reflect.ValueOf(o)
		if !rv.IsValid() {
			return nil, errors.Errorf("field %s of nil", name)
		}

		if sv := indirect(rv); sv.Kind() == reflect.Struct {
			if sf, ok := sv.Type().FieldByName(name); ok && sf.IsExported() {
				fv, err := sv.FieldByIndexErr(sf.Index)
				if err != nil {
					return nil, err
				}
				return fv.Interface(), nil
			}
		}
		if m := rv.MethodByName(name); m.IsValid() {
			return Call(m.Interface()).Evaluate()
		}
		return nil, errors.Errorf("%T has no field or method %s", o, name)
	})
}

func paramType(ft reflect.Type, i int) reflect.Type {
	if ft.IsVariadic() && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}

func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errors.Errorf("cannot use nil as %s", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	// 只在数值类型之间或底层类型相同的类型之间转换
	if rv.Type().ConvertibleTo(t) && (isNumeric(rv.Kind()) && isNumeric(t.Kind()) || rv.Kind() == t.Kind()) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, errors.Errorf("cannot use %T as %s", v, t)
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

// isNull 值为 nil 或 nil 指针时视为 null
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
