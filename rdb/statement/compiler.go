package statement

import (
	"context"

	"github.com/hatlonely/repodb/cfg"
	"github.com/hatlonely/repodb/log"
	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
)

// Interface 语句编译器
type Interface interface {
	Compile(m *model.TableModel, req *Request) (*Statement, error)
	CompileContext(ctx context.Context, m *model.TableModel, req *Request) (*Statement, error)
}

// Compiler 把模型和请求编译成参数化 SQL，可在多个 goroutine 间共享
type Compiler struct {
	resolver         *Resolver
	models           *model.Cache
	textCache        *TextCache
	defaultBatchSize int
	logger           log.Logger
}

// NewCompiler 使用默认配置，不缓存语句文本
func NewCompiler() *Compiler {
	c, err := NewCompilerWithOptions(&Options{})
	if err != nil {
		panic(err)
	}
	return c
}

func NewCompilerWithOptions(options *Options) (*Compiler, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "failed to set default options")
	}
	if err := cfg.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(err, "invalid options")
	}

	resolver, err := NewResolver(options.KeyStrategies...)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create resolver")
	}

	c := &Compiler{
		resolver:         resolver,
		models:           model.NewCache(),
		defaultBatchSize: options.DefaultBatchSize,
	}

	if options.TextCache != nil {
		c.textCache, err = NewTextCacheWithOptions(options.TextCache)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create text cache")
		}
	}

	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create logger")
	}
	c.logger = logger.WithGroup("compiler")

	return c, nil
}

// Models 编译器持有的模型缓存
func (c *Compiler) Models() *model.Cache {
	return c.models
}

func (c *Compiler) Resolver() *Resolver {
	return c.resolver
}

func (c *Compiler) TextCache() *TextCache {
	return c.textCache
}

// Reset 清空模型缓存、主键一致性结果和语句缓存，schema 重新加载时调用
func (c *Compiler) Reset() {
	c.models.Clear()
	c.resolver.Reset()
	if c.textCache != nil {
		c.textCache.Clear()
	}
}

// CompileFor 先解析 v 的模型再编译，v 可以是结构体、结构体指针、reflect.Type 或已注册的模型名
func (c *Compiler) CompileFor(v any, req *Request) (*Statement, error) {
	var m *model.TableModel
	var err error
	if name, ok := v.(string); ok {
		m, err = c.models.Lookup(name)
	} else {
		m, err = c.models.Resolve(v)
	}
	if err != nil {
		return nil, err
	}
	return c.Compile(m, req)
}

func (c *Compiler) CompileContext(_ context.Context, m *model.TableModel, req *Request) (*Statement, error) {
	return c.Compile(m, req)
}

// Compile 编译语句，失败时不返回任何文本
func (c *Compiler) Compile(m *model.TableModel, req *Request) (*Statement, error) {
	if req == nil {
		return nil, newCompileError(ErrNullOrEmptyInput, m, "", "", "request is nil")
	}
	if m == nil {
		return nil, newCompileError(ErrNullOrEmptyInput, nil, req.Command, "", "table model is nil")
	}

	if c.textCache != nil {
		if st, ok := c.textCache.Get(m, req); ok {
			return st, nil
		}
	}

	st, err := c.compile(m, req)
	if err != nil {
		c.logger.Warn("compile failed", "table", m.Table, "command", string(req.Command), "error", err.Error())
		return nil, err
	}
	c.logger.Debug("compiled", "table", st.Table, "command", string(st.Command), "text", st.Text)

	if c.textCache != nil {
		if err := c.textCache.Set(m, req, st); err != nil {
			c.logger.Warn("failed to cache statement", "table", st.Table, "error", err.Error())
		}
	}
	return st, nil
}

func (c *Compiler) compile(m *model.TableModel, req *Request) (*Statement, error) {
	cmd := req.Command
	if cmd == "" {
		return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "command is required")
	}
	parsed, err := model.ParseCommand(string(cmd))
	if err != nil {
		return nil, err
	}
	normalized := *req
	normalized.Command = parsed

	b, err := c.assemble(m, &normalized)
	if err != nil {
		return nil, err
	}
	if conflict := b.Conflict(); conflict != nil {
		return nil, newCompileError(ErrParameterCollision, m, parsed, conflict.First.Parameter,
			"column %s (row %d) and column %s (row %d) share parameter @%s",
			conflict.First.Column, conflict.First.Row, conflict.Second.Column, conflict.Second.Row, conflict.First.Parameter)
	}
	return &Statement{
		Command:    parsed,
		Table:      m.Table,
		Text:       b.String(),
		Parameters: b.ParameterNames(),
		Bindings:   b.Bindings(),
	}, nil
}

func (c *Compiler) assemble(m *model.TableModel, req *Request) (*QueryBuilder, error) {
	cmd := req.Command
	if cmd == model.CommandDeleteAll {
		return assembleDeleteAll(m), nil
	}

	if needsConsistency(cmd) {
		if err := c.resolver.CheckConsistency(m, cmd); err != nil {
			return nil, err
		}
	}

	if cmd == model.CommandDelete {
		qualifiers, err := c.resolver.Resolve(m, cmd, req.Qualifiers)
		if err != nil {
			return nil, err
		}
		return assembleDelete(m, qualifiers), nil
	}

	if cmd.IsAggregate() {
		return c.assembleAggregate(m, req)
	}

	selection, err := Select(m, cmd, req.Fields, req.OverrideIgnore)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case model.CommandInsert:
		return assembleInsert(m, selection, 1)
	case model.CommandBulkInsert:
		rows := req.BatchSize
		if rows <= 0 {
			rows = c.defaultBatchSize
		}
		return assembleInsert(m, selection, rows)
	case model.CommandUpdate:
		qualifiers, err := c.resolver.Resolve(m, cmd, req.Qualifiers)
		if err != nil {
			return nil, err
		}
		return assembleUpdate(m, selection, qualifiers)
	case model.CommandMerge, model.CommandInlineMerge:
		qualifiers, err := c.resolver.Resolve(m, cmd, req.Qualifiers)
		if err != nil {
			return nil, err
		}
		return assembleMerge(m, selection, qualifiers)
	case model.CommandQuery:
		qualifiers, err := c.resolver.Resolve(m, cmd, req.Qualifiers)
		if err != nil {
			return nil, err
		}
		orders, err := resolveOrders(m, cmd, req.OrderBy)
		if err != nil {
			return nil, err
		}
		return assembleQuery(m, selection, qualifiers, orders, req.Top), nil
	case model.CommandQueryAll:
		orders, err := resolveOrders(m, cmd, req.OrderBy)
		if err != nil {
			return nil, err
		}
		return assembleQuery(m, selection, nil, orders, 0), nil
	case model.CommandBatchQuery:
		return c.assembleBatchQuery(m, selection, req)
	}
	return nil, errors.Wrapf(model.ErrUnknownCommand, "command %q", cmd)
}

func (c *Compiler) assembleBatchQuery(m *model.TableModel, selection Selection, req *Request) (*QueryBuilder, error) {
	cmd := req.Command
	if len(req.OrderBy) == 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "order by is required")
	}
	if req.RowsPerBatch <= 0 || req.Page < 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "",
			"invalid page %d with %d rows per batch", req.Page, req.RowsPerBatch)
	}
	qualifiers, err := c.optionalQualifiers(m, cmd, req.Qualifiers)
	if err != nil {
		return nil, err
	}
	orders, err := resolveOrders(m, cmd, req.OrderBy)
	if err != nil {
		return nil, err
	}
	return assembleBatchQuery(m, selection, qualifiers, orders, req.Page, req.RowsPerBatch), nil
}

func (c *Compiler) assembleAggregate(m *model.TableModel, req *Request) (*QueryBuilder, error) {
	cmd := req.Command
	var column string
	if cmd != model.CommandCount {
		if req.Field == "" {
			return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "aggregate field is required")
		}
		column = UnquoteIdentifier(req.Field)
		if field, ok := m.Field(req.Field); ok {
			if field.IsIgnored(cmd) {
				return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, req.Field, "field is ignored for %s", cmd)
			}
			column = field.Column
		}
	}

	qualifiers, err := c.optionalQualifiers(m, cmd, req.Qualifiers)
	if err != nil {
		return nil, err
	}
	return assembleAggregate(m, cmd, column, qualifiers), nil
}

// optionalQualifiers 只有显式给出时才生成 WHERE
func (c *Compiler) optionalQualifiers(m *model.TableModel, cmd model.Command, names []string) (Qualifiers, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return c.resolver.Resolve(m, cmd, names)
}

// resolveOrders 把排序字段的名字换成列名，未声明的名字原样使用
func resolveOrders(m *model.TableModel, cmd model.Command, orders []OrderField) ([]OrderField, error) {
	out := make([]OrderField, 0, len(orders))
	for _, o := range orders {
		name := UnquoteIdentifier(o.Name)
		if name == "" {
			return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "order field has no name")
		}
		if field, ok := m.Field(name); ok {
			name = field.Column
		}
		out = append(out, OrderField{Name: name, Descending: o.Descending})
	}
	return out, nil
}
