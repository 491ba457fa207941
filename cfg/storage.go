package cfg

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MapStorage 基于 map 和 slice 的配置存储
type MapStorage struct {
	data any
}

func NewMapStorage(data any) *MapStorage {
	return &MapStorage{data: data}
}

// Data 获取存储的原始数据
func (ms *MapStorage) Data() any {
	return ms.data
}

// Sub 获取子配置存储对象
// key 可以包含点号（.）表示多级嵌套，[]表示数组索引，例如 "records[0].fields"
func (ms *MapStorage) Sub(key string) *MapStorage {
	if key == "" {
		return ms
	}

	current := ms.data
	for _, k := range parseKey(key) {
		current = valueByKey(current, k)
		if current == nil {
			break
		}
	}
	return NewMapStorage(current)
}

// ConvertTo 将配置数据转成结构体或者 map/slice 等任意结构
// 先按 def tag 填充默认值，再覆盖配置中的值，最后按 validate tag 校验
func (ms *MapStorage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}

	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "failed to set defaults")
	}
	if err := convertValue(ms.data, rv); err != nil {
		return err
	}
	return ValidateStruct(object)
}

func parseKey(key string) []string {
	var keys []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			keys = append(keys, current.String())
			current.Reset()
		}
	}

	for _, char := range key {
		switch char {
		case '.', '[', ']':
			flush()
		default:
			current.WriteRune(char)
		}
	}
	flush()
	return keys
}

func valueByKey(data any, key string) any {
	switch val := data.(type) {
	case map[string]any:
		if v, ok := val[key]; ok {
			return v
		}
		for k, v := range val {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	case []any:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= len(val) {
			return nil
		}
		return val[index]
	}
	return nil
}

// convertValue 将数据转换为目标类型
func convertValue(src any, dst reflect.Value) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			// 配置中出现的可选子结构同样需要默认值
			dst.Set(reflect.New(dst.Type().Elem()))
			if err := setDefaults(dst); err != nil {
				return err
			}
		}
		return convertValue(src, dst.Elem())
	}

	if !dst.CanSet() {
		return errors.New("destination is not settable")
	}

	switch dst.Type() {
	case reflect.TypeOf(time.Duration(0)):
		return convertToDuration(srcValue, dst)
	case reflect.TypeOf(time.Time{}):
		return convertToTime(srcValue, dst)
	}

	if srcValue.Type().AssignableTo(dst.Type()) && dst.Kind() != reflect.Struct {
		dst.Set(srcValue)
		return nil
	}

	switch dst.Kind() {
	case reflect.Map:
		return convertToMap(srcValue, dst)
	case reflect.Slice:
		return convertToSlice(srcValue, dst)
	case reflect.Struct:
		return convertToStruct(srcValue, dst)
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(srcValue)
			return nil
		}
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if srcValue.Kind() == reflect.String {
			return setDefaultValue(dst, srcValue.String())
		}
	case reflect.String:
		if srcValue.Kind() != reflect.String {
			dst.SetString(strings.TrimSpace(toString(src)))
			return nil
		}
	}

	if srcValue.Type().ConvertibleTo(dst.Type()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}

	return errors.Errorf("cannot convert %v to %v", srcValue.Type(), dst.Type())
}

func convertToDuration(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.String:
		duration, err := time.ParseDuration(src.String())
		if err != nil {
			return errors.Wrapf(err, "failed to parse duration %q", src.String())
		}
		dst.Set(reflect.ValueOf(duration))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Float32, reflect.Float64:
		// 浮点数视为秒
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Duration", src.Type())
}

func convertToTime(src, dst reflect.Value) error {
	if src.Kind() == reflect.String {
		return setTimeDefault(dst, src.String())
	}
	if t, ok := src.Interface().(time.Time); ok {
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Time", src.Type())
}

func convertToMap(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	for _, key := range src.MapKeys() {
		item := reflect.New(dst.Type().Elem()).Elem()
		if err := convertValue(src.MapIndex(key).Interface(), item); err != nil {
			return errors.WithMessagef(err, "key %v", key.Interface())
		}

		dstKey := reflect.New(dst.Type().Key()).Elem()
		if err := convertValue(key.Interface(), dstKey); err != nil {
			return err
		}
		dst.SetMapIndex(dstKey, item)
	}
	return nil
}

func convertToSlice(src, dst reflect.Value) error {
	// 单个字符串按逗号拆分，方便在 ini 或环境变量里写列表
	if src.Kind() == reflect.String {
		parts := strings.Split(src.String(), ",")
		items := make([]any, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		src = reflect.ValueOf(items)
	}
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}

	length := src.Len()
	slice := reflect.MakeSlice(dst.Type(), length, length)
	for i := 0; i < length; i++ {
		if err := convertValue(src.Index(i).Interface(), slice.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	dst.Set(slice)
	return nil
}

func convertToStruct(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := fieldName(field)
		if name == "-" {
			continue
		}

		var srcField reflect.Value
		for _, key := range src.MapKeys() {
			if key.Kind() == reflect.String && key.String() == name {
				srcField = src.MapIndex(key)
				break
			}
		}
		if !srcField.IsValid() {
			for _, key := range src.MapKeys() {
				if key.Kind() == reflect.String && strings.EqualFold(key.String(), name) {
					srcField = src.MapIndex(key)
					break
				}
			}
		}
		if !srcField.IsValid() {
			continue
		}

		if err := convertValue(srcField.Interface(), fieldValue); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

// fieldName 依次使用 cfg、json、yaml tag，最后是字段名
func fieldName(field reflect.StructField) string {
	for _, key := range []string{"cfg", "json", "yaml"} {
		if tag := field.Tag.Get(key); tag != "" {
			if name, _, _ := strings.Cut(tag, ","); name != "" {
				return name
			}
		}
	}
	return field.Name
}
