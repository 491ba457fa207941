package model

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var ErrModelNotFound = errors.New("model not found")

type cacheEntry struct {
	model *TableModel
	err   error
}

// Cache 类型到 TableModel 的缓存，每个类型最多构建一次
// 声明式模型通过 Register 按名字注册
type Cache struct {
	builder  *TableModelBuilder
	byType   sync.Map // reflect.Type -> *cacheEntry
	byName   sync.Map // string -> *TableModel
	inflight singleflight.Group
}

func NewCache() *Cache {
	return &Cache{builder: NewTableModelBuilder()}
}

// Resolve 解析值对应的模型，v 可以是结构体、结构体指针或 reflect.Type
func (c *Cache) Resolve(v any) (*TableModel, error) {
	if v == nil {
		return nil, errors.Wrap(ErrInvalidModel, "nil value")
	}
	if t, ok := v.(reflect.Type); ok {
		return c.ResolveType(t)
	}
	return c.ResolveType(reflect.TypeOf(v))
}

// ResolveType 解析类型对应的模型，构建错误同样被缓存
func (c *Cache) ResolveType(t reflect.Type) (*TableModel, error) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return nil, errors.Wrap(ErrInvalidModel, "nil type")
	}

	if value, ok := c.byType.Load(t); ok {
		entry := value.(*cacheEntry)
		return entry.model, entry.err
	}

	value, _, _ := c.inflight.Do(typeKey(t), func() (any, error) {
		if value, ok := c.byType.Load(t); ok {
			return value, nil
		}
		model, err := c.builder.FromType(t)
		entry := &cacheEntry{model: model, err: err}
		actual, _ := c.byType.LoadOrStore(t, entry)
		return actual, nil
	})

	entry := value.(*cacheEntry)
	return entry.model, entry.err
}

// typeKey 同名的局部类型 String() 相同，用类型描述符的地址区分
func typeKey(t reflect.Type) string {
	return fmt.Sprintf("%s@%p", t.String(), t)
}

// Register 注册声明式模型，同名覆盖
func (c *Cache) Register(model *TableModel) error {
	if model == nil || model.Name == "" {
		return errors.Wrap(ErrInvalidModel, "model has no name")
	}
	c.byName.Store(model.Name, model)
	return nil
}

// Lookup 按名字查找声明式模型
func (c *Cache) Lookup(name string) (*TableModel, error) {
	value, ok := c.byName.Load(name)
	if !ok {
		return nil, errors.Wrapf(ErrModelNotFound, "model %q", name)
	}
	return value.(*TableModel), nil
}

// Names 返回已注册的声明式模型名
func (c *Cache) Names() []string {
	var names []string
	c.byName.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// Clear 清空缓存，schema 重新加载时使用
func (c *Cache) Clear() {
	c.byType.Range(func(key, _ any) bool {
		c.byType.Delete(key)
		return true
	})
	c.byName.Range(func(key, _ any) bool {
		c.byName.Delete(key)
		return true
	})
}
