package statement

import (
	"regexp"
	"strconv"
	"strings"
)

var nonWordPattern = regexp.MustCompile(`\W`)

// QuoteIdentifier 用方括号包裹标识符，点号分隔的每一段单独包裹，段内的 ] 写成 ]]
// 已经正确带方括号的部分保持不变，例如 dbo.[Widget] -> [dbo].[Widget]
func QuoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}

	parts := splitIdentifier(name)
	for i, part := range parts {
		if isBracketed(part) {
			continue
		}
		parts[i] = "[" + strings.ReplaceAll(part, "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

// isBracketed [ 开头 ] 结尾，且中间的 ] 都已转义为 ]]
func isBracketed(part string) bool {
	if len(part) < 2 || part[0] != '[' || part[len(part)-1] != ']' {
		return false
	}
	return !strings.Contains(strings.ReplaceAll(part[1:len(part)-1], "]]", ""), "]")
}

// splitIdentifier 按点号拆分，以 [ 开头的段内的点号不拆，]] 视为转义
func splitIdentifier(name string) []string {
	var parts []string
	var current strings.Builder
	quoted := false
	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '[' && !quoted && current.Len() == 0:
			quoted = true
		case r == ']' && quoted:
			if i+1 < len(runes) && runes[i+1] == ']' {
				current.WriteRune(r)
				i++
			} else {
				quoted = false
			}
		case r == '.' && !quoted:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(r)
	}
	return append(parts, current.String())
}

// UnquoteIdentifier 去掉每一段外层的方括号并还原 ]]
func UnquoteIdentifier(name string) string {
	parts := splitIdentifier(strings.TrimSpace(name))
	for i, part := range parts {
		if isBracketed(part) {
			parts[i] = strings.ReplaceAll(part[1:len(part)-1], "]]", "]")
		}
	}
	return strings.Join(parts, ".")
}

// ParameterName 列名对应的参数名（不带 @），非单词字符替换为下划线
// 不同的列可能得到相同的参数名，由 QueryBuilder 检测
func ParameterName(column string) string {
	return nonWordPattern.ReplaceAllString(UnquoteIdentifier(column), "_")
}

// rowParameterName 批量插入第 row 行的参数名，第 0 行没有后缀
func rowParameterName(column string, row int) string {
	name := ParameterName(column)
	if row > 0 {
		name += "_" + strconv.Itoa(row)
	}
	return name
}

// ParameterConflict 同一个参数名对应了两个不同的 (列, 行)
type ParameterConflict struct {
	First  Binding
	Second Binding
}

// QueryBuilder 以空格拼接 SQL 片段，同时按首次出现的顺序记录参数和它绑定的列
type QueryBuilder struct {
	parts    []string
	bindings []Binding
	seen     map[string]int // 参数名 -> bindings 下标
	conflict *ParameterConflict
}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{seen: map[string]int{}}
}

// Write 追加原样输出的片段
func (b *QueryBuilder) Write(tokens ...string) *QueryBuilder {
	b.parts = append(b.parts, tokens...)
	return b
}

func (b *QueryBuilder) Identifier(name string) *QueryBuilder {
	return b.Write(QuoteIdentifier(name))
}

func (b *QueryBuilder) OpenParen() *QueryBuilder {
	return b.Write("(")
}

func (b *QueryBuilder) CloseParen() *QueryBuilder {
	return b.Write(")")
}

// Fields [c1], [c2], ...
func (b *QueryBuilder) Fields(columns []string) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return QuoteIdentifier(c)
	})
}

// Parameters @c1, @c2, ...，row 为批量插入的行号，大于 0 时参数名带 _row 后缀
func (b *QueryBuilder) Parameters(columns []string, row int) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return b.param(c, row)
	})
}

// AsFields @c1 AS [c1], ...
func (b *QueryBuilder) AsFields(columns []string) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return b.param(c, 0) + " AS " + QuoteIdentifier(c)
	})
}

// AliasedFields S.[c1], ...
func (b *QueryBuilder) AliasedFields(alias string, columns []string) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return alias + "." + QuoteIdentifier(c)
	})
}

// FieldsAndParameters [c1] = @c1, ...
func (b *QueryBuilder) FieldsAndParameters(columns []string) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return QuoteIdentifier(c) + " = " + b.param(c, 0)
	})
}

// FieldsAndAliasFields [c1] = S.[c1], ...
func (b *QueryBuilder) FieldsAndAliasFields(alias string, columns []string) *QueryBuilder {
	return b.join(columns, func(c string) string {
		return QuoteIdentifier(c) + " = " + alias + "." + QuoteIdentifier(c)
	})
}

// WhereFrom WHERE ( [k1] = @k1 AND ... )，没有列时不输出
func (b *QueryBuilder) WhereFrom(columns []string) *QueryBuilder {
	if len(columns) == 0 {
		return b
	}
	conditions := make([]string, 0, len(columns))
	for _, c := range columns {
		conditions = append(conditions, QuoteIdentifier(c)+" = "+b.param(c, 0))
	}
	return b.Write("WHERE", "(", strings.Join(conditions, " AND "), ")")
}

// OnFrom ON ( S.[k1] = T.[k1] AND ... )
func (b *QueryBuilder) OnFrom(left, right string, columns []string) *QueryBuilder {
	conditions := make([]string, 0, len(columns))
	for _, c := range columns {
		q := QuoteIdentifier(c)
		conditions = append(conditions, left+"."+q+" = "+right+"."+q)
	}
	return b.Write("ON", "(", strings.Join(conditions, " AND "), ")")
}

// TopFrom TOP (n)，n 不大于 0 时不输出
func (b *QueryBuilder) TopFrom(top int) *QueryBuilder {
	if top <= 0 {
		return b
	}
	return b.Write("TOP", "("+strconv.Itoa(top)+")")
}

// OrderByFrom ORDER BY [o] ASC, ...，没有排序字段时不输出
func (b *QueryBuilder) OrderByFrom(orders []OrderField) *QueryBuilder {
	if len(orders) == 0 {
		return b
	}
	return b.Write("ORDER", "BY", orderList(orders))
}

// Comma 在上一个片段后追加逗号，例如 ( ... ), ( ... )
func (b *QueryBuilder) Comma() *QueryBuilder {
	if len(b.parts) == 0 {
		return b
	}
	b.parts[len(b.parts)-1] += ","
	return b
}

// End 语句结束符
func (b *QueryBuilder) End() *QueryBuilder {
	return b.Write(";")
}

func (b *QueryBuilder) String() string {
	return strings.Join(b.parts, " ")
}

// ParameterNames 按首次出现的顺序返回参数名，已去重
func (b *QueryBuilder) ParameterNames() []string {
	out := make([]string, 0, len(b.bindings))
	for _, binding := range b.bindings {
		out = append(out, binding.Parameter)
	}
	return out
}

// Bindings 与 ParameterNames 同序
func (b *QueryBuilder) Bindings() []Binding {
	out := make([]Binding, len(b.bindings))
	copy(out, b.bindings)
	return out
}

// Conflict 第一个参数名冲突，没有冲突时为 nil
func (b *QueryBuilder) Conflict() *ParameterConflict {
	return b.conflict
}

func (b *QueryBuilder) join(columns []string, render func(string) string) *QueryBuilder {
	items := make([]string, 0, len(columns))
	for _, c := range columns {
		items = append(items, render(c))
	}
	return b.Write(strings.Join(items, ", "))
}

// param 同一 (列, 行) 重复出现时复用参数，不同 (列, 行) 撞名时记录冲突
func (b *QueryBuilder) param(column string, row int) string {
	binding := Binding{Parameter: rowParameterName(column, row), Column: UnquoteIdentifier(column), Row: row}
	if i, ok := b.seen[binding.Parameter]; ok {
		first := b.bindings[i]
		if (first.Column != binding.Column || first.Row != binding.Row) && b.conflict == nil {
			b.conflict = &ParameterConflict{First: first, Second: binding}
		}
		return "@" + binding.Parameter
	}
	b.seen[binding.Parameter] = len(b.bindings)
	b.bindings = append(b.bindings, binding)
	return "@" + binding.Parameter
}

func orderList(orders []OrderField) string {
	items := make([]string, 0, len(orders))
	for _, o := range orders {
		items = append(items, QuoteIdentifier(o.Name)+" "+o.Direction())
	}
	return strings.Join(items, ", ")
}
