package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrInvalidModel     = errors.New("invalid model")
	ErrDuplicateColumn  = errors.New("duplicate column")
	ErrMultiplePrimary  = errors.New("multiple primary fields")
	ErrMultipleIdentity = errors.New("multiple identity fields")
)

// TableModel 记录类型的元数据，构建后只读，可在多个 goroutine 间共享
type TableModel struct {
	Name   string            // 类型名
	Table  string            // 表名，未覆盖时等于类型名
	Fields []FieldDefinition // 声明顺序，决定生成 SQL 的列顺序
	Type   reflect.Type      // 反射得到的类型，声明式模型为 nil

	id uint64 // 构建时分配，同名的模型也互不相同
}

var modelSequence atomic.Uint64

func nextModelID() uint64 {
	return modelSequence.Add(1)
}

// FieldDefinition 字段定义
type FieldDefinition struct {
	Name     string     // 属性名
	Column   string     // 列名，未覆盖时等于属性名
	Primary  bool       // 主键
	Identity bool       // 数据库自增
	Ignore   CommandSet // 在这些语句中不出现
	Index    []int      // 反射路径，声明式模型为 nil
}

// IsIgnored 字段是否在 cmd 中被排除
func (f *FieldDefinition) IsIgnored(cmd Command) bool {
	return f.Ignore.Has(cmd)
}

// Matches 按属性名或列名匹配，大小写不敏感
func (f *FieldDefinition) Matches(name string) bool {
	name = strings.Trim(name, "[]")
	return strings.EqualFold(f.Name, name) || strings.EqualFold(f.Column, name)
}

// Field 按属性名或列名查找字段
func (m *TableModel) Field(name string) (*FieldDefinition, bool) {
	for i := range m.Fields {
		if m.Fields[i].Matches(name) {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Primary 返回主键字段
func (m *TableModel) Primary() (*FieldDefinition, bool) {
	for i := range m.Fields {
		if m.Fields[i].Primary {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Identity 返回自增字段
func (m *TableModel) Identity() (*FieldDefinition, bool) {
	for i := range m.Fields {
		if m.Fields[i].Identity {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Columns 返回全部列名
func (m *TableModel) Columns() []string {
	columns := make([]string, 0, len(m.Fields))
	for _, field := range m.Fields {
		columns = append(columns, field.Column)
	}
	return columns
}

// Key 模型的唯一标识，用于语句缓存
// 每次构建得到的模型 Key 都不同，同一个 *TableModel 的 Key 不变
func (m *TableModel) Key() string {
	if m.id == 0 {
		return fmt.Sprintf("%p:%s:%s", m, m.Name, m.Table)
	}
	return strconv.FormatUint(m.id, 10) + ":" + m.Name + ":" + m.Table
}

func (m *TableModel) validate() error {
	if m.Table == "" {
		return errors.Wrapf(ErrInvalidModel, "model %q has no table name", m.Name)
	}

	columns := make(map[string]struct{}, len(m.Fields))
	var primary, identity string
	for _, field := range m.Fields {
		if field.Column == "" {
			return errors.Wrapf(ErrInvalidModel, "field %q of %s has no column", field.Name, m.Name)
		}
		key := strings.ToLower(field.Column)
		if _, ok := columns[key]; ok {
			return errors.Wrapf(ErrDuplicateColumn, "column %s of %s", field.Column, m.Name)
		}
		columns[key] = struct{}{}

		if field.Primary {
			if primary != "" {
				return errors.Wrapf(ErrMultiplePrimary, "%s declares %s and %s", m.Name, primary, field.Name)
			}
			primary = field.Name
		}
		if field.Identity {
			if identity != "" {
				return errors.Wrapf(ErrMultipleIdentity, "%s declares %s and %s", m.Name, identity, field.Name)
			}
			identity = field.Name
		}
	}
	return nil
}
