package model

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Tabler 实现该接口的类型使用自定义表名
type Tabler interface {
	TableName() string
}

// Declaration 声明式的记录类型，用于 schema 文件或无法反射的调用方
type Declaration struct {
	Name   string             `cfg:"name" validate:"required"`
	Table  string             `cfg:"table"`
	Fields []FieldDeclaration `cfg:"fields" validate:"dive"`
}

// FieldDeclaration 声明式的字段
type FieldDeclaration struct {
	Name     string   `cfg:"name" validate:"required"`
	Column   string   `cfg:"column"`
	Primary  bool     `cfg:"primary"`
	Identity bool     `cfg:"identity"`
	Ignore   []string `cfg:"ignore"`
}

// TableModelBuilder 表模型构建器
type TableModelBuilder struct{}

// NewTableModelBuilder 创建新的表模型构建器
func NewTableModelBuilder() *TableModelBuilder {
	return &TableModelBuilder{}
}

// FromStruct 从结构体构建 TableModel
// 支持的 tag 格式：
// - `rdb:"column_name,primary,identity,ignore=insert|update"`
// - 第一段总是列名，不改列名时要以逗号开头，例如 `rdb:",primary"`；`rdb:"primary"` 表示列名为 primary
// - `rdb:"-"` 跳过字段
// - `table:"table_name"` 用于指定表名（任意字段上），TableName() 方法优先
func (b *TableModelBuilder) FromStruct(v any) (*TableModel, error) {
	if v == nil {
		return nil, errors.Wrap(ErrInvalidModel, "nil value")
	}
	return b.FromType(reflect.TypeOf(v))
}

// FromType 从类型构建 TableModel，指针会被解引用
func (b *TableModelBuilder) FromType(t reflect.Type) (*TableModel, error) {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrInvalidModel, "expected struct, got %v", t)
	}

	model := &TableModel{
		Name:  t.Name(),
		Table: b.tableName(t),
		Type:  t,
		id:    nextModelID(),
	}
	if model.Table == "" {
		model.Table = t.Name()
	}

	fields, err := b.structFields(t, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to build model %s", t.Name())
	}
	model.Fields = fields

	if err := model.validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// FromDeclaration 从声明构建 TableModel
func (b *TableModelBuilder) FromDeclaration(d *Declaration) (*TableModel, error) {
	if d == nil || d.Name == "" {
		return nil, errors.Wrap(ErrInvalidModel, "declaration has no name")
	}

	model := &TableModel{
		Name:   d.Name,
		Table:  d.Table,
		Fields: make([]FieldDefinition, 0, len(d.Fields)),
		id:     nextModelID(),
	}
	if model.Table == "" {
		model.Table = d.Name
	}

	for _, fd := range d.Fields {
		if fd.Name == "" {
			return nil, errors.Wrapf(ErrInvalidModel, "declaration %s has a field without name", d.Name)
		}
		field := FieldDefinition{
			Name:     fd.Name,
			Column:   fd.Column,
			Primary:  fd.Primary,
			Identity: fd.Identity,
			Ignore:   NewCommandSet(),
		}
		if field.Column == "" {
			field.Column = fd.Name
		}
		for _, name := range fd.Ignore {
			cmd, err := ParseCommand(name)
			if err != nil {
				return nil, errors.WithMessagef(err, "field %s.%s", d.Name, fd.Name)
			}
			field.Ignore.Add(cmd)
		}
		model.Fields = append(model.Fields, field)
	}

	if err := model.validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// tableName 按 TableName() 方法、table tag 的顺序获取表名
func (b *TableModelBuilder) tableName(rt reflect.Type) string {
	if tabler, ok := reflect.New(rt).Interface().(Tabler); ok {
		if name := tabler.TableName(); name != "" {
			return name
		}
	}

	for i := 0; i < rt.NumField(); i++ {
		if tableTag := rt.Field(i).Tag.Get("table"); tableTag != "" {
			return tableTag
		}
	}
	return ""
}

// structFields 遍历结构体字段，匿名结构体且没有 tag 时展开其字段
func (b *TableModelBuilder) structFields(rt reflect.Type, index []int) ([]FieldDefinition, error) {
	var fields []FieldDefinition

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("rdb")
		if tag == "-" {
			continue
		}

		path := make([]int, len(index)+1)
		copy(path, index)
		path[len(index)] = i

		if sf.Anonymous && tag == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				embedded, err := b.structFields(ft, path)
				if err != nil {
					return nil, err
				}
				fields = append(fields, embedded...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		field, err := b.parseFieldTag(sf, tag)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to parse field %s", sf.Name)
		}
		field.Index = path
		fields = append(fields, field)
	}

	return fields, nil
}

// parseFieldTag 解析字段的 rdb tag
func (b *TableModelBuilder) parseFieldTag(sf reflect.StructField, tag string) (FieldDefinition, error) {
	field := FieldDefinition{
		Name:   sf.Name,
		Column: sf.Name,
		Ignore: NewCommandSet(),
	}
	if tag == "" {
		return field, nil
	}

	parts := strings.Split(tag, ",")

	// 第一部分是列名（如果指定）
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		field.Column = strings.TrimSpace(parts[0])
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if key, value, ok := strings.Cut(part, "="); ok {
			switch strings.TrimSpace(key) {
			case "ignore":
				for _, name := range strings.Split(value, "|") {
					if strings.TrimSpace(name) == "" {
						continue
					}
					cmd, err := ParseCommand(name)
					if err != nil {
						return field, err
					}
					field.Ignore.Add(cmd)
				}
			case "column":
				field.Column = strings.TrimSpace(value)
			default:
				return field, errors.Wrapf(ErrInvalidModel, "unknown option %q", key)
			}
			continue
		}

		switch part {
		case "primary", "pk":
			field.Primary = true
		case "identity", "auto":
			field.Identity = true
		default:
			return field, errors.Wrapf(ErrInvalidModel, "unknown option %q", part)
		}
	}

	return field, nil
}
