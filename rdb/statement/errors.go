package statement

import (
	"fmt"
	"strings"

	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
)

// 编译失败的错误类型，均为调用方的定义问题，不重试
var (
	// ErrNullOrEmptyInput 必需的字段列表或参数缺失
	ErrNullOrEmptyInput = errors.New("null or empty input")

	// ErrUnresolvableQualifier 限定字段不存在，或在当前语句中被忽略
	ErrUnresolvableQualifier = errors.New("unresolvable qualifier")

	// ErrMissingQualifier 没有显式限定字段，也没有主键或约定主键
	ErrMissingQualifier = errors.New("missing qualifier")

	// ErrInconsistentKeyDefinition 自增字段与主键不一致
	ErrInconsistentKeyDefinition = errors.New("inconsistent key definition")

	// ErrParameterCollision 不同的列（或批量插入中不同行的列）生成了同一个参数名
	ErrParameterCollision = errors.New("parameter collision")
)

// CompileError 语句编译错误，Kind 为上面的哨兵错误之一
type CompileError struct {
	Kind    error
	Table   string
	Command model.Command
	Name    string // 出错的字段或限定字段名，原样保留
	Reason  string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Name != "" {
		fmt.Fprintf(&sb, " %q", e.Name)
	}
	if e.Table != "" || e.Command != "" {
		fmt.Fprintf(&sb, " (table=%s, command=%s)", e.Table, e.Command)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

// Is 使 errors.Is(err, ErrMissingQualifier) 这类判断成立
func (e *CompileError) Is(err error) bool {
	return err == e.Kind
}

func (e *CompileError) Unwrap() error {
	return e.Kind
}

func newCompileError(kind error, m *model.TableModel, cmd model.Command, name string, format string, args ...any) *CompileError {
	e := &CompileError{
		Kind:    kind,
		Command: cmd,
		Name:    name,
		Reason:  fmt.Sprintf(format, args...),
	}
	if m != nil {
		e.Table = m.Table
	}
	return e
}

func IsNullOrEmptyInput(err error) bool {
	return errors.Is(err, ErrNullOrEmptyInput)
}

func IsUnresolvableQualifier(err error) bool {
	return errors.Is(err, ErrUnresolvableQualifier)
}

func IsMissingQualifier(err error) bool {
	return errors.Is(err, ErrMissingQualifier)
}

func IsInconsistentKeyDefinition(err error) bool {
	return errors.Is(err, ErrInconsistentKeyDefinition)
}

func IsParameterCollision(err error) bool {
	return errors.Is(err, ErrParameterCollision)
}

// AsCompileError 取出错误链中的 CompileError
func AsCompileError(err error) (*CompileError, bool) {
	var e *CompileError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
