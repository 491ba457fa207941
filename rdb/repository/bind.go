package repository

import (
	"database/sql"
	"reflect"
	"strings"

	"github.com/hatlonely/repodb/rdb/model"
	"github.com/hatlonely/repodb/rdb/statement"
	"github.com/pkg/errors"
)

// columnField 按列名找字段，语句中的列名已去掉方括号
func columnField(m *model.TableModel, column string) (*model.FieldDefinition, bool) {
	for i := range m.Fields {
		if strings.EqualFold(statement.UnquoteIdentifier(m.Fields[i].Column), column) {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// fieldValue 匿名指针字段为 nil 时取值为 nil
func fieldValue(rv reflect.Value, field *model.FieldDefinition) any {
	fv, err := rv.FieldByIndexErr(field.Index)
	if err != nil {
		return nil
	}
	return fv.Interface()
}

// arguments 按语句的 Bindings 生成 sql.Named 参数，rows[i] 为第 i 行的记录
func arguments(m *model.TableModel, st *statement.Statement, rows []reflect.Value) ([]any, error) {
	args := make([]any, 0, len(st.Bindings))
	for _, binding := range st.Bindings {
		if binding.Row >= len(rows) {
			return nil, errors.Wrapf(ErrMissingArgument, "parameter @%s of %s needs row %d", binding.Parameter, st.Command, binding.Row)
		}
		field, ok := columnField(m, binding.Column)
		if !ok {
			return nil, errors.Wrapf(ErrMissingArgument, "parameter @%s of %s has no field for column %s", binding.Parameter, st.Command, binding.Column)
		}
		args = append(args, sql.Named(binding.Parameter, fieldValue(rows[binding.Row], field)))
	}
	return args, nil
}

// bindRecord record 为 nil 时语句不能有参数
func bindRecord[T any](m *model.TableModel, st *statement.Statement, record *T) ([]any, error) {
	if len(st.Bindings) == 0 {
		return nil, nil
	}
	if record == nil {
		return nil, errors.Wrapf(ErrMissingArgument, "%s needs %d parameters but no record given", st.Command, len(st.Bindings))
	}
	return arguments(m, st, []reflect.Value{reflect.ValueOf(record).Elem()})
}

// bindRows 第 i 行的参数取自 records[i]
func bindRows[T any](m *model.TableModel, st *statement.Statement, records []*T) ([]any, error) {
	rows := make([]reflect.Value, 0, len(records))
	for i, record := range records {
		if record == nil {
			return nil, errors.Wrapf(ErrNilRecord, "row %d", i)
		}
		rows = append(rows, reflect.ValueOf(record).Elem())
	}
	return arguments(m, st, rows)
}

func setIdentity(rv reflect.Value, field *model.FieldDefinition, id int64) error {
	fv, err := fieldByIndexAlloc(rv, field.Index)
	if err != nil {
		return err
	}
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(id)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(uint64(id))
	default:
		return errors.Errorf("identity field %s has non-integer type %v", field.Name, fv.Type())
	}
	return nil
}

// fieldByIndexAlloc 沿路径取字段，遇到 nil 的匿名指针时分配
func fieldByIndexAlloc(rv reflect.Value, index []int) (reflect.Value, error) {
	if len(index) == 0 {
		return reflect.Value{}, errors.New("field has no reflection path")
	}
	for i, x := range index {
		if i > 0 && rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv, nil
}
