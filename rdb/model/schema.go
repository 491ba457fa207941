package model

import (
	"github.com/hatlonely/repodb/cfg"
	"github.com/pkg/errors"
)

// Schema 声明式的记录集合，可从 yaml/json/toml/ini 文件加载
//
//	records:
//	  - name: Widget
//	    table: dbo.Widget
//	    fields:
//	      - name: Field1
//	        primary: true
//	      - name: Field3
//	        ignore: [update]
type Schema struct {
	Records []Declaration `cfg:"records" validate:"dive"`
}

// LoadSchema 从文件加载 schema
func LoadSchema(filename string) (*Schema, error) {
	config, err := cfg.NewConfig(filename)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load schema %s", filename)
	}
	defer config.Close()

	return SchemaFromConfig(config)
}

// SchemaFromConfig 从已加载的配置中解析 schema，便于配合 Watch 重新加载
func SchemaFromConfig(config *cfg.Config) (*Schema, error) {
	schema := &Schema{}
	if err := config.ConvertTo(schema); err != nil {
		return nil, errors.WithMessage(err, "failed to convert schema")
	}
	return schema, nil
}

// Models 构建全部声明，名字重复时报错
func (s *Schema) Models() ([]*TableModel, error) {
	builder := NewTableModelBuilder()
	models := make([]*TableModel, 0, len(s.Records))
	seen := make(map[string]struct{}, len(s.Records))
	for i := range s.Records {
		d := &s.Records[i]
		if _, ok := seen[d.Name]; ok {
			return nil, errors.Wrapf(ErrInvalidModel, "record %s declared twice", d.Name)
		}
		seen[d.Name] = struct{}{}

		m, err := builder.FromDeclaration(d)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// Register 构建全部声明并注册到缓存
func (s *Schema) Register(cache *Cache) error {
	models, err := s.Models()
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := cache.Register(m); err != nil {
			return err
		}
	}
	return nil
}
