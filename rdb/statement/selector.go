package statement

import (
	"strings"

	"github.com/hatlonely/repodb/rdb/model"
)

// Selection 参与某条语句的字段，顺序为声明顺序或调用方给出的顺序
type Selection struct {
	Command model.Command
	Fields  []model.FieldDefinition
}

// Select 计算 cmd 实际使用的字段
// fields 为 nil 时使用全部字段；非 nil 时按给出的顺序，未声明的名字作为临时列
// overrideIgnore 只对 merge/inlineMerge 生效，跳过这两条语句的忽略规则
func Select(m *model.TableModel, cmd model.Command, fields []string, overrideIgnore bool) (Selection, error) {
	selection := Selection{Command: cmd}
	if m == nil {
		return selection, newCompileError(ErrNullOrEmptyInput, nil, cmd, "", "table model is nil")
	}

	var candidates []model.FieldDefinition
	if fields == nil {
		candidates = m.Fields
	} else {
		if len(fields) == 0 {
			return selection, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "explicit field list is empty")
		}
		candidates = explicitFields(m, fields)
	}

	bypass := overrideIgnore && cmd.IsMergeFamily()
	selection.Fields = make([]model.FieldDefinition, 0, len(candidates))
	for _, field := range candidates {
		if !bypass && field.IsIgnored(cmd) {
			continue
		}
		selection.Fields = append(selection.Fields, field)
	}

	if requiresFields(cmd) && len(selection.Fields) == 0 {
		return selection, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "no field participates in the statement")
	}
	return selection, nil
}

// explicitFields 按名字取字段，重复的名字只保留第一次
func explicitFields(m *model.TableModel, names []string) []model.FieldDefinition {
	out := make([]model.FieldDefinition, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = UnquoteIdentifier(name)
		if name == "" {
			continue
		}

		field, ok := m.Field(name)
		var def model.FieldDefinition
		if ok {
			def = *field
		} else {
			def = model.FieldDefinition{Name: name, Column: name, Ignore: model.NewCommandSet()}
		}

		key := strings.ToLower(def.Column)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, def)
	}
	return out
}

func requiresFields(cmd model.Command) bool {
	switch cmd {
	case model.CommandDelete, model.CommandDeleteAll:
		return false
	}
	return !cmd.IsAggregate()
}

// Branch 按另一条语句的忽略规则过滤，用于 merge 的 INSERT/UPDATE 分支
func (s Selection) Branch(cmd model.Command) []model.FieldDefinition {
	out := make([]model.FieldDefinition, 0, len(s.Fields))
	for _, field := range s.Fields {
		if !field.IsIgnored(cmd) {
			out = append(out, field)
		}
	}
	return out
}

func (s Selection) Columns() []string {
	return columnsOf(s.Fields)
}

// Contains 按属性名判断字段是否在选择中
func (s Selection) Contains(name string) bool {
	for _, field := range s.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

func columnsOf(fields []model.FieldDefinition) []string {
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Column)
	}
	return columns
}

// without 去掉满足 drop 的字段，保持顺序
func without(fields []model.FieldDefinition, drop func(model.FieldDefinition) bool) []model.FieldDefinition {
	out := make([]model.FieldDefinition, 0, len(fields))
	for _, field := range fields {
		if !drop(field) {
			out = append(out, field)
		}
	}
	return out
}
