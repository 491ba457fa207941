package repository

import (
	"database/sql"
	"reflect"
	"strconv"
	"time"

	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
)

// scanRow 按列名把当前行写入结构体，模型中没有的列（例如 RowNumber）跳过
func scanRow(m *model.TableModel, rows *sql.Rows, dest reflect.Value) error {
	columns, err := rows.Columns()
	if err != nil {
		return errors.Wrap(err, "failed to get columns")
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return errors.Wrap(err, "failed to scan row")
	}

	for i, column := range columns {
		field, ok := m.Field(column)
		if !ok || values[i] == nil {
			continue
		}
		fv, err := fieldByIndexAlloc(dest, field.Index)
		if err != nil {
			return err
		}
		if err := setFieldValue(fv, values[i]); err != nil {
			return errors.WithMessagef(err, "failed to set field %s", field.Name)
		}
	}
	return nil
}

var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00", // sqlite
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// setFieldValue 处理驱动返回值与字段类型的差异，例如 sqlite 的整型布尔和字符串时间
func setFieldValue(fieldValue reflect.Value, value any) error {
	if value == nil {
		return nil
	}

	if scanner, ok := fieldValue.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(value)
	}

	fieldType := fieldValue.Type()
	if fieldType.Kind() == reflect.Ptr {
		elem := reflect.New(fieldType.Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		fieldValue.Set(elem)
		return nil
	}

	if b, ok := value.([]byte); ok && fieldType.Kind() != reflect.Slice {
		value = string(b)
	}

	switch fieldType.Kind() {
	case reflect.Bool:
		switch v := value.(type) {
		case int64:
			fieldValue.SetBool(v != 0)
			return nil
		case bool:
			fieldValue.SetBool(v)
			return nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "cannot parse bool %q", v)
			}
			fieldValue.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s, ok := value.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "cannot parse int %q", s)
			}
			fieldValue.SetInt(n)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if s, ok := value.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.Wrapf(err, "cannot parse float %q", s)
			}
			fieldValue.SetFloat(f)
			return nil
		}
	}

	if fieldType == reflect.TypeOf(time.Time{}) {
		if s, ok := value.(string); ok {
			var lastErr error
			for _, format := range timeFormats {
				t, err := time.Parse(format, s)
				if err == nil {
					fieldValue.Set(reflect.ValueOf(t))
					return nil
				}
				lastErr = err
			}
			return errors.Wrapf(lastErr, "cannot parse time %q", s)
		}
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(fieldType) {
		fieldValue.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(fieldType) && isNumeric(rv.Kind()) == isNumeric(fieldType.Kind()) {
		fieldValue.Set(rv.Convert(fieldType))
		return nil
	}
	return errors.Errorf("cannot convert %v to %v", rv.Type(), fieldType)
}

func isNumeric(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
