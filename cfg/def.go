package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SetDefaults 为结构体设置默认值，基于 def tag，只填充零值字段
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}

	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr {
		return errors.New("object must be a pointer")
	}
	if rv.IsNil() {
		return errors.New("object cannot be nil")
	}

	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		defTag, hasDef := field.Tag.Lookup("def")

		// 嵌套结构体递归处理，nil 指针只有带 def tag 时才分配
		switch {
		case fieldValue.Kind() == reflect.Struct && fieldValue.Type() != reflect.TypeOf(time.Time{}):
			if err := setDefaults(fieldValue); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
			continue
		case fieldValue.Kind() == reflect.Ptr && fieldValue.Type().Elem().Kind() == reflect.Struct:
			if fieldValue.IsNil() && hasDef {
				fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
			}
			if err := setDefaults(fieldValue); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
			continue
		}

		if defTag == "" || !fieldValue.IsZero() {
			continue
		}
		if fieldValue.Kind() == reflect.Ptr {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
			fieldValue = fieldValue.Elem()
		}
		if err := setDefaultValue(fieldValue, defTag); err != nil {
			return errors.WithMessagef(err, "failed to set default value for field %s", field.Name)
		}
	}
	return nil
}

// setDefaultValue 根据字段类型解析字符串值
func setDefaultValue(rv reflect.Value, value string) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(value)
		return nil
	case reflect.Bool:
		val, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "invalid bool value %q", value)
		}
		rv.SetBool(val)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return errors.Wrapf(err, "invalid duration value %q", value)
			}
			rv.SetInt(int64(duration))
			return nil
		}
		val, err := strconv.ParseInt(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int value %q", value)
		}
		rv.SetInt(val)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := strconv.ParseUint(value, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint value %q", value)
		}
		rv.SetUint(val)
		return nil
	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(value, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float value %q", value)
		}
		rv.SetFloat(val)
		return nil
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			return setTimeDefault(rv, value)
		}
	case reflect.Slice:
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setDefaultValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return errors.WithMessagef(err, "slice element %d", i)
			}
		}
		rv.Set(slice)
		return nil
	}
	return errors.Errorf("unsupported type %v", rv.Type())
}

func setTimeDefault(rv reflect.Value, value string) error {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			rv.Set(reflect.ValueOf(t))
			return nil
		}
	}
	if timestamp, err := strconv.ParseInt(value, 10, 64); err == nil {
		rv.Set(reflect.ValueOf(time.Unix(timestamp, 0)))
		return nil
	}
	return errors.Errorf("invalid time value %q", value)
}
