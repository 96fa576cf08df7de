package mapping

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/hatlonely/declsql/dialect"
	"golang.org/x/sync/singleflight"
)

// Cache 按类型缓存所有方言下的表描述
// 同一类型并发首次访问时只构建一次，构建失败不缓存
type Cache struct {
	resolver Resolver
	group    singleflight.Group
	tables   sync.Map // reflect.Type -> map[dialect.Kind]*Table
}

// NewCache resolver 为空时使用 TagResolver
func NewCache(resolver Resolver) *Cache {
	if resolver == nil {
		resolver = NewTagResolver()
	}
	return &Cache{resolver: resolver}
}

var defaultCache = NewCache(nil)

// Default 进程级共享的缓存，使用 TagResolver
func Default() *Cache {
	return defaultCache
}

// Get 获取类型在指定数据库下的表描述
func (c *Cache) Get(t reflect.Type, kind dialect.Kind) (*Table, error) {
	tables, err := c.load(t)
	if err != nil {
		return nil, err
	}
	table, ok := tables[kind]
	if !ok {
		return nil, &dialect.UnsupportedProviderError{Provider: string(kind)}
	}
	return table, nil
}

// TableOf 获取 T 在方言 d 下的表描述
func TableOf[T any](c *Cache, d *dialect.Dialect) (*Table, error) {
	return c.Get(reflect.TypeFor[T](), d.Kind())
}

func (c *Cache) load(t reflect.Type) (map[dialect.Kind]*Table, error) {
	t = indirect(t)
	if t == nil {
		return nil, &MappingError{Reason: "type is nil"}
	}
	if v, ok := c.tables.Load(t); ok {
		return v.(map[dialect.Kind]*Table), nil
	}

	v, err, _ := c.group.Do(typeKey(t), func() (any, error) {
		if v, ok := c.tables.Load(t); ok {
			return v, nil
		}
		tables, err := c.build(t)
		if err != nil {
			return nil, err
		}
		actual, _ := c.tables.LoadOrStore(t, tables)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[dialect.Kind]*Table), nil
}

// build 一次性构建所有方言的表描述
func (c *Cache) build(t reflect.Type) (map[dialect.Kind]*Table, error) {
	md, err := c.resolver.Resolve(t)
	if err != nil {
		return nil, err
	}

	dialects := dialect.All()
	tables := make(map[dialect.Kind]*Table, len(dialects))
	for _, d := range dialects {
		table, err := NewTable(t, md, d)
		if err != nil {
			return nil, err
		}
		tables[d.Kind()] = table
	}
	return tables, nil
}

// typeKey 同名的局部类型 String() 相同，用类型描述的地址区分
func typeKey(t reflect.Type) string {
	return fmt.Sprintf("%s@%p", t, t)
}
