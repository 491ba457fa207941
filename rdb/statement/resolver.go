package statement

import (
	"reflect"
	"strings"
	"sync"

	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
)

// KeyStrategy 从模型中推断隐式主键，找不到时返回 false
type KeyStrategy func(m *model.TableModel) (*model.FieldDefinition, bool)

const (
	KeyStrategyPrimary    = "primary"
	KeyStrategyConvention = "convention"
	KeyStrategyIdentity   = "identity"
)

// DefaultKeyStrategies 默认的推断顺序
var DefaultKeyStrategies = []string{KeyStrategyPrimary, KeyStrategyConvention, KeyStrategyIdentity}

var ErrUnknownKeyStrategy = errors.New("unknown key strategy")

var keyStrategies sync.Map // name -> KeyStrategy

func init() {
	MustRegisterKeyStrategy(KeyStrategyPrimary, PrimaryKeyStrategy)
	MustRegisterKeyStrategy(KeyStrategyConvention, ConventionKeyStrategy)
	MustRegisterKeyStrategy(KeyStrategyIdentity, IdentityKeyStrategy)
}

// RegisterKeyStrategy 按名字注册推断策略，同名同函数重复注册直接忽略
func RegisterKeyStrategy(name string, strategy KeyStrategy) error {
	if name == "" || strategy == nil {
		return errors.New("key strategy name and function are required")
	}
	if existing, ok := keyStrategies.Load(name); ok {
		if reflect.ValueOf(existing).Pointer() == reflect.ValueOf(strategy).Pointer() {
			return nil
		}
		return errors.Errorf("key strategy %s already registered with different function", name)
	}
	keyStrategies.Store(name, strategy)
	return nil
}

func MustRegisterKeyStrategy(name string, strategy KeyStrategy) {
	if err := RegisterKeyStrategy(name, strategy); err != nil {
		panic(err)
	}
}

func lookupKeyStrategy(name string) (KeyStrategy, error) {
	value, ok := keyStrategies.Load(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKeyStrategy, "strategy %q", name)
	}
	return value.(KeyStrategy), nil
}

// PrimaryKeyStrategy 标记为 primary 的字段
func PrimaryKeyStrategy(m *model.TableModel) (*model.FieldDefinition, bool) {
	return m.Primary()
}

// ConventionKeyStrategy 按声明顺序找第一个列名或属性名为 Id、<类型名>Id、<表名>Id 的字段，大小写敏感
func ConventionKeyStrategy(m *model.TableModel) (*model.FieldDefinition, bool) {
	candidates := map[string]struct{}{"Id": {}}
	if m.Name != "" {
		candidates[m.Name+"Id"] = struct{}{}
	}
	if table := unqualifiedTable(m.Table); table != "" {
		candidates[table+"Id"] = struct{}{}
	}

	for i := range m.Fields {
		field := &m.Fields[i]
		if _, ok := candidates[field.Column]; ok {
			return field, true
		}
		if _, ok := candidates[field.Name]; ok {
			return field, true
		}
	}
	return nil, false
}

// IdentityKeyStrategy 自增字段
func IdentityKeyStrategy(m *model.TableModel) (*model.FieldDefinition, bool) {
	return m.Identity()
}

// unqualifiedTable dbo.[Widget] -> Widget
func unqualifiedTable(table string) string {
	parts := splitIdentifier(table)
	return UnquoteIdentifier(parts[len(parts)-1])
}

// Qualifiers 用于 WHERE/ON 条件的限定字段
type Qualifiers []model.FieldDefinition

func (q Qualifiers) Columns() []string {
	return columnsOf(q)
}

func (q Qualifiers) Names() []string {
	names := make([]string, 0, len(q))
	for _, field := range q {
		names = append(names, field.Name)
	}
	return names
}

func (q Qualifiers) Has(field model.FieldDefinition) bool {
	for _, k := range q {
		if k.Name == field.Name {
			return true
		}
	}
	return false
}

// Resolver 限定字段解析器，按策略顺序推断隐式主键
// 主键一致性检查的结果按模型缓存，每个模型只计算一次
type Resolver struct {
	names       []string
	ladder      []KeyStrategy
	consistency sync.Map // *model.TableModel -> error
}

// NewResolver names 为空时使用 DefaultKeyStrategies
func NewResolver(names ...string) (*Resolver, error) {
	if len(names) == 0 {
		names = DefaultKeyStrategies
	}
	r := &Resolver{names: append([]string(nil), names...)}
	for _, name := range names {
		strategy, err := lookupKeyStrategy(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		r.ladder = append(r.ladder, strategy)
	}
	return r, nil
}

// Strategies 返回策略名，按推断顺序
func (r *Resolver) Strategies() []string {
	return append([]string(nil), r.names...)
}

// ImplicitKey 依次尝试各个策略
func (r *Resolver) ImplicitKey(m *model.TableModel) (*model.FieldDefinition, bool) {
	for _, strategy := range r.ladder {
		if field, ok := strategy(m); ok {
			return field, true
		}
	}
	return nil, false
}

// Resolve 解析 cmd 的限定字段
// explicit 非空时每个名字都必须是模型上的字段；否则按策略推断
// 在 cmd 中被忽略的字段不能作为限定字段
func (r *Resolver) Resolve(m *model.TableModel, cmd model.Command, explicit []string) (Qualifiers, error) {
	if m == nil {
		return nil, newCompileError(ErrNullOrEmptyInput, nil, cmd, "", "table model is nil")
	}

	if len(explicit) == 0 {
		field, ok := r.ImplicitKey(m)
		if !ok {
			return nil, newCompileError(ErrMissingQualifier, m, cmd, "",
				"no explicit qualifier and no key found by strategies %s", strings.Join(r.names, ","))
		}
		if field.IsIgnored(cmd) {
			return nil, newCompileError(ErrUnresolvableQualifier, m, cmd, field.Name, "key field is ignored for %s", cmd)
		}
		return Qualifiers{*field}, nil
	}

	qualifiers := make(Qualifiers, 0, len(explicit))
	for _, name := range explicit {
		field, ok := m.Field(name)
		if !ok {
			return nil, newCompileError(ErrUnresolvableQualifier, m, cmd, name, "no such field")
		}
		if field.IsIgnored(cmd) {
			return nil, newCompileError(ErrUnresolvableQualifier, m, cmd, name, "field is ignored for %s", cmd)
		}
		if qualifiers.Has(*field) {
			continue
		}
		qualifiers = append(qualifiers, *field)
	}
	return qualifiers, nil
}

// CheckConsistency 自增字段存在时，必须就是策略推断出的主键
func (r *Resolver) CheckConsistency(m *model.TableModel, cmd model.Command) error {
	if value, ok := r.consistency.Load(m); ok {
		return withCommand(value.(errorOrNil).error, cmd)
	}

	var err error
	if identity, ok := m.Identity(); ok {
		if key, found := r.ImplicitKey(m); found && key.Name != identity.Name {
			err = newCompileError(ErrInconsistentKeyDefinition, m, "", identity.Name,
				"identity field %s differs from key field %s", identity.Name, key.Name)
		}
	}
	actual, _ := r.consistency.LoadOrStore(m, errorOrNil{err})
	return withCommand(actual.(errorOrNil).error, cmd)
}

// Reset 清空一致性检查的结果
func (r *Resolver) Reset() {
	r.consistency.Clear()
}

// errorOrNil 让 sync.Map 能够缓存 nil 结果
type errorOrNil struct {
	error
}

func withCommand(err error, cmd model.Command) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*CompileError)
	if !ok {
		return err
	}
	out := *e
	out.Command = cmd
	return &out
}

// needsConsistency 依赖主键或插入自增字段的语句
func needsConsistency(cmd model.Command) bool {
	switch cmd {
	case model.CommandInsert, model.CommandBulkInsert, model.CommandUpdate, model.CommandDelete,
		model.CommandMerge, model.CommandInlineMerge, model.CommandQuery:
		return true
	}
	return false
}
