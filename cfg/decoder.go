package cfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decoder 将原始数据解码为 MapStorage
type Decoder interface {
	Decode(data []byte) (*MapStorage, error)
}

// NewDecoderForFile 根据文件扩展名选择解码器
//   - .json -> JsonDecoder
//   - .yaml/.yml -> YamlDecoder
//   - .toml -> TomlDecoder
//   - .ini -> IniDecoder
func NewDecoderForFile(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return &JsonDecoder{}, nil
	case ".yaml", ".yml":
		return &YamlDecoder{}, nil
	case ".toml":
		return &TomlDecoder{}, nil
	case ".ini":
		return &IniDecoder{}, nil
	default:
		return nil, errors.Errorf("unsupported config file format: %s", filename)
	}
}

type JsonDecoder struct{}

func (d *JsonDecoder) Decode(data []byte) (*MapStorage, error) {
	var result any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON")
	}
	return NewMapStorage(normalize(result)), nil
}

type YamlDecoder struct{}

func (d *YamlDecoder) Decode(data []byte) (*MapStorage, error) {
	var result any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode YAML")
	}
	return NewMapStorage(normalize(result)), nil
}

type TomlDecoder struct{}

func (d *TomlDecoder) Decode(data []byte) (*MapStorage, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode TOML")
	}
	return NewMapStorage(normalize(result)), nil
}

// IniDecoder 默认 section 的键放在顶层，其他 section 作为子 map
type IniDecoder struct{}

func (d *IniDecoder) Decode(data []byte) (*MapStorage, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := make(map[string]any)
	for _, section := range file.Sections() {
		target := result
		if section.Name() != ini.DefaultSection {
			sub := make(map[string]any)
			result[section.Name()] = sub
			target = sub
		}
		for _, key := range section.Keys() {
			values := key.StringsWithShadows(",")
			if len(values) > 1 {
				items := make([]any, len(values))
				for i, value := range values {
					items[i] = parseIniValue(value)
				}
				target[key.Name()] = items
				continue
			}
			target[key.Name()] = parseIniValue(key.String())
		}
	}
	return NewMapStorage(result), nil
}

func parseIniValue(value string) any {
	if b, err := strconv.ParseBool(value); err == nil && (strings.EqualFold(value, "true") || strings.EqualFold(value, "false")) {
		return b
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// normalize 把 map[any]any 和 json.Number 转成统一的表示
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[toString(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}
	return v
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
