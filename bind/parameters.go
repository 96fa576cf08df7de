package bind

import (
	"iter"
	"reflect"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Parameters 有序的绑定参数集合，按加入顺序枚举
// 非并发安全，交给执行器之后不应再修改
type Parameters struct {
	names  []string
	values map[string]any
}

func New() *Parameters {
	return &Parameters{values: make(map[string]any)}
}

// Add 加入一个参数，名称重复时返回错误
func (p *Parameters) Add(name string, value any) error {
	if name == "" {
		return errors.New("parameter name is empty")
	}
	if _, ok := p.values[name]; ok {
		return errors.Errorf("duplicate parameter %q", name)
	}
	p.set(name, value)
	return nil
}

// Set 加入或覆盖参数，覆盖时保持原有顺序
func (p *Parameters) Set(name string, value any) {
	p.set(name, value)
}

func (p *Parameters) set(name string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = value
}

func (p *Parameters) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[name]
	return v, ok
}

func (p *Parameters) Has(name string) bool {
	_, ok := p.Get(name)
	return ok
}

func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// Names 按加入顺序返回参数名
func (p *Parameters) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// All 按加入顺序遍历参数
func (p *Parameters) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if p == nil {
			return
		}
		for _, name := range p.names {
			if !yield(name, p.values[name]) {
				return
			}
		}
	}
}

func (p *Parameters) Clone() *Parameters {
	c := &Parameters{
		names:  make([]string, 0, p.Len()),
		values: make(map[string]any, p.Len()),
	}
	for name, value := range p.All() {
		c.set(name, value)
	}
	return c
}

// Map 返回参数的 map 副本
func (p *Parameters) Map() map[string]any {
	m := make(map[string]any, p.Len())
	for name, value := range p.All() {
		m[name] = value
	}
	return m
}

// Merge 合并一个记录的字段，同名参数被覆盖，新参数追加在末尾
// record 可以是结构体、结构体指针、key 为 string 的 map 或 *Parameters
func (p *Parameters) Merge(record any) error {
	if record == nil {
		return nil
	}
	if other, ok := record.(*Parameters); ok {
		for name, value := range other.All() {
			p.set(name, value)
		}
		return nil
	}

	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		p.mergeStruct(rv)
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return errors.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		// map 无序，按 key 排序后加入以保证结果确定
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, key := range keys {
			p.set(key.String(), rv.MapIndex(key).Interface())
		}
		return nil
	default:
		return errors.Errorf("unsupported record type %T", record)
	}
}

func (p *Parameters) mergeStruct(rv reflect.Value) {
	for _, field := range reflect.VisibleFields(rv.Type()) {
		if !field.IsExported() || field.Tag.Get("rdb") == "-" {
			continue
		}
		if field.Anonymous && indirectKind(field.Type) == reflect.Struct {
			continue
		}
		fv, err := rv.FieldByIndexErr(field.Index)
		if err != nil {
			continue
		}
		p.set(field.Name, fv.Interface())
	}
}

func indirectKind(t reflect.Type) reflect.Kind {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind()
}
