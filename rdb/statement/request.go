package statement

import (
	"strings"

	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
)

// Request 一次编译请求
// Fields、Qualifiers 为 nil 表示使用全部字段、推断主键
type Request struct {
	Command        model.Command
	Fields         []string
	Qualifiers     []string
	OverrideIgnore bool // 只对 merge/inlineMerge 生效

	Field        string       // 聚合的目标字段
	OrderBy      []OrderField // query/queryAll/batchQuery 的排序
	Top          int          // query 返回的最大行数，0 表示不限制
	Page         int          // batchQuery 的页号，从 0 开始
	RowsPerBatch int          // batchQuery 每页行数
	BatchSize    int          // bulkInsert 的行数
}

// OrderField 排序字段
type OrderField struct {
	Name       string
	Descending bool
}

func Asc(name string) OrderField {
	return OrderField{Name: name}
}

func Desc(name string) OrderField {
	return OrderField{Name: name, Descending: true}
}

func (o OrderField) Direction() string {
	if o.Descending {
		return "DESC"
	}
	return "ASC"
}

// ParseOrderField 解析 "name"、"name asc"、"name desc"
func ParseOrderField(s string) (OrderField, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return OrderField{Name: parts[0]}, nil
	case 2:
		switch strings.ToUpper(parts[1]) {
		case "ASC":
			return OrderField{Name: parts[0]}, nil
		case "DESC":
			return OrderField{Name: parts[0], Descending: true}, nil
		}
	}
	return OrderField{}, errors.Errorf("invalid order field %q", s)
}

// Statement 编译结果，Parameters 为不带 @ 的参数名，按首次出现的顺序去重
// Bindings 与 Parameters 一一对应，给出每个参数取值的列和行
type Statement struct {
	Command    model.Command
	Table      string
	Text       string
	Parameters []string
	Bindings   []Binding
}

// Binding 参数的取值来源，Row 为批量插入的行号，其他语句为 0
type Binding struct {
	Parameter string
	Column    string
	Row       int
}

func (s *Statement) String() string {
	return s.Text
}
