package mapping

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hatlonely/declsql/dialect"
)

// Metadata 类型到表的映射元数据，由 Resolver 提供
type Metadata struct {
	// Name 表名，为空时使用类型名
	Name string
	// Schema 为空时使用方言的默认 schema
	Schema string
	// Tables 按数据库类型覆盖 schema 和表名
	Tables  map[dialect.Kind]TableOverride
	Columns []ColumnMetadata
}

// TableOverride 单个数据库的表名覆盖
type TableOverride struct {
	Schema string
	Name   string
}

// ColumnMetadata 字段到列的映射元数据
type ColumnMetadata struct {
	// Member 字段名
	Member string
	// Column 列名，为空时与字段名相同
	Column  string
	Columns map[dialect.Kind]string

	AutoIncrement bool
	CreatedAt     bool
	ModifiedAt    bool

	// Default 默认值 SQL 表达式，如 CURRENT_TIMESTAMP
	Default  string
	Defaults map[dialect.Kind]string

	// Sequence 序列名，仅对支持序列的数据库生效
	Sequence  string
	Sequences map[dialect.Kind]string
}

// Resolver 解析类型的映射元数据
type Resolver interface {
	Resolve(t reflect.Type) (*Metadata, error)
}

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(t reflect.Type) (*Metadata, error)

func (f ResolverFunc) Resolve(t reflect.Type) (*Metadata, error) {
	return f(t)
}

// StaticResolver 显式注册的元数据，未注册的类型交给 fallback
type StaticResolver struct {
	mu       sync.RWMutex
	metadata map[reflect.Type]*Metadata
	fallback Resolver
}

func NewStaticResolver(fallback Resolver) *StaticResolver {
	return &StaticResolver{
		metadata: make(map[reflect.Type]*Metadata),
		fallback: fallback,
	}
}

// Register 注册类型的元数据，需在首次使用 Cache 之前完成
func (r *StaticResolver) Register(t reflect.Type, md *Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[indirect(t)] = md
}

// RegisterType 泛型形式的 Register
func RegisterType[T any](r *StaticResolver, md *Metadata) {
	r.Register(reflect.TypeFor[T](), md)
}

func (r *StaticResolver) Resolve(t reflect.Type) (*Metadata, error) {
	r.mu.RLock()
	md, ok := r.metadata[indirect(t)]
	r.mu.RUnlock()
	if ok {
		return md, nil
	}
	if r.fallback != nil {
		return r.fallback.Resolve(t)
	}
	return nil, &MappingError{Type: t, Reason: "no mapping metadata registered"}
}

// MappingError 元数据无效或缺失
type MappingError struct {
	Type   reflect.Type
	Reason string
}

func (e *MappingError) Error() string {
	if e.Type == nil {
		return "mapping: " + e.Reason
	}
	return fmt.Sprintf("mapping %s: %s", e.Type, e.Reason)
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
