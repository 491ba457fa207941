package statement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"简单名字", "Widget", "[Widget]"},
		{"带 schema", "dbo.Widget", "[dbo].[Widget]"},
		{"已带括号", "[Widget]", "[Widget]"},
		{"部分带括号", "dbo.[Widget]", "[dbo].[Widget]"},
		{"括号内的点号", "[a.b]", "[a.b]"},
		{"包含空格", "Order Lines", "[Order Lines]"},
		{"空字符串", "", ""},
		{"右括号转义", "x]; DROP TABLE W; --", "[x]]; DROP TABLE W; --]"},
		{"已转义的右括号", "[a]]b]", "[a]]b]"},
		{"未转义的括号段重新包裹", "[x]; y]", "[[x]]; y]]]"},
		{"带 schema 的右括号", "dbo.a]b", "[dbo].[a]]b]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.in))
		})
	}
}

func TestUnquoteIdentifier(t *testing.T) {
	assert.Equal(t, "Widget", UnquoteIdentifier("[Widget]"))
	assert.Equal(t, "dbo.Widget", UnquoteIdentifier("[dbo].[Widget]"))
	assert.Equal(t, "a]b", UnquoteIdentifier("[a]]b]"))
	assert.Equal(t, "x]; y", UnquoteIdentifier("x]; y"))
	for _, name := range []string{"x]; DROP TABLE W; --", "a]]b", "Order Lines"} {
		assert.Equal(t, name, UnquoteIdentifier(QuoteIdentifier(name)))
	}
}

func TestParameterName(t *testing.T) {
	assert.Equal(t, "Field1", ParameterName("Field1"))
	assert.Equal(t, "Field1", ParameterName("[Field1]"))
	assert.Equal(t, "Unit_Price", ParameterName("Unit Price"))
	assert.Equal(t, "a_b", ParameterName("a-b"))
}

func TestQueryBuilder(t *testing.T) {
	t.Run("参数按首次出现的顺序去重", func(t *testing.T) {
		b := NewQueryBuilder().
			Write("UPDATE").Identifier("t").
			Write("SET").FieldsAndParameters([]string{"a", "b"}).
			WhereFrom([]string{"a"}).
			End()
		assert.Equal(t, "UPDATE [t] SET [a] = @a, [b] = @b WHERE ( [a] = @a ) ;", b.String())
		assert.Equal(t, []string{"a", "b"}, b.ParameterNames())
	})

	t.Run("空的 WHERE、TOP 和 ORDER BY 不输出", func(t *testing.T) {
		b := NewQueryBuilder().
			Write("SELECT").TopFrom(0).Fields([]string{"a"}).
			Write("FROM").Identifier("t").
			WhereFrom(nil).OrderByFrom(nil).
			End()
		assert.Equal(t, "SELECT [a] FROM [t] ;", b.String())
		assert.Empty(t, b.ParameterNames())
	})

	t.Run("批量参数后缀", func(t *testing.T) {
		b := NewQueryBuilder().
			OpenParen().Parameters([]string{"a", "b"}, 0).CloseParen().Comma().
			OpenParen().Parameters([]string{"a", "b"}, 1).CloseParen()
		assert.Equal(t, "( @a, @b ), ( @a_1, @b_1 )", b.String())
		assert.Equal(t, []string{"a", "b", "a_1", "b_1"}, b.ParameterNames())
	})

	t.Run("参数记录绑定的列和行", func(t *testing.T) {
		b := NewQueryBuilder().
			OpenParen().Parameters([]string{"[a]", "b"}, 0).CloseParen().Comma().
			OpenParen().Parameters([]string{"[a]", "b"}, 1).CloseParen()
		assert.Equal(t, []Binding{
			{Parameter: "a", Column: "a", Row: 0},
			{Parameter: "b", Column: "b", Row: 0},
			{Parameter: "a_1", Column: "a", Row: 1},
			{Parameter: "b_1", Column: "b", Row: 1},
		}, b.Bindings())
		assert.Nil(t, b.Conflict())
	})

	t.Run("不同的列撞名", func(t *testing.T) {
		b := NewQueryBuilder().Write("VALUES").
			OpenParen().Parameters([]string{"First Name", "First_Name"}, 0).CloseParen()
		if assert.NotNil(t, b.Conflict()) {
			assert.Equal(t, "First Name", b.Conflict().First.Column)
			assert.Equal(t, "First_Name", b.Conflict().Second.Column)
			assert.Equal(t, "First_Name", b.Conflict().Second.Parameter)
		}
	})

	t.Run("行后缀与列名撞名", func(t *testing.T) {
		b := NewQueryBuilder().
			OpenParen().Parameters([]string{"A", "A_1"}, 0).CloseParen().Comma().
			OpenParen().Parameters([]string{"A", "A_1"}, 1).CloseParen()
		if assert.NotNil(t, b.Conflict()) {
			assert.Equal(t, Binding{Parameter: "A_1", Column: "A_1", Row: 0}, b.Conflict().First)
			assert.Equal(t, Binding{Parameter: "A_1", Column: "A", Row: 1}, b.Conflict().Second)
		}
	})

	t.Run("同一列重复出现不算冲突", func(t *testing.T) {
		b := NewQueryBuilder().FieldsAndParameters([]string{"a"}).WhereFrom([]string{"[a]"})
		assert.Nil(t, b.Conflict())
		assert.Equal(t, []string{"a"}, b.ParameterNames())
	})

	t.Run("ON 条件", func(t *testing.T) {
		b := NewQueryBuilder().OnFrom("S", "T", []string{"k1", "k2"})
		assert.Equal(t, "ON ( S.[k1] = T.[k1] AND S.[k2] = T.[k2] )", b.String())
	})
}

func TestParseOrderField(t *testing.T) {
	o, err := ParseOrderField("Name")
	assert.NoError(t, err)
	assert.Equal(t, Asc("Name"), o)

	o, err = ParseOrderField("Name desc")
	assert.NoError(t, err)
	assert.Equal(t, Desc("Name"), o)
	assert.Equal(t, "DESC", o.Direction())

	o, err = ParseOrderField("Name ASC")
	assert.NoError(t, err)
	assert.Equal(t, "ASC", o.Direction())

	_, err = ParseOrderField("Name sideways")
	assert.Error(t, err)
	_, err = ParseOrderField("")
	assert.Error(t, err)
}
