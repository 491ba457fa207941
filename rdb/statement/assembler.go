package statement

import (
	"strconv"

	"github.com/hatlonely/repodb/rdb/model"
)

var aggregateFunctions = map[model.Command][2]string{
	model.CommandAverage: {"AVG", "[AverageValue]"},
	model.CommandMax:     {"MAX", "[MaxValue]"},
	model.CommandMin:     {"MIN", "[MinValue]"},
	model.CommandSum:     {"SUM", "[SumValue]"},
}

func isIdentity(field model.FieldDefinition) bool {
	return field.Identity
}

// assembleDeleteAll DELETE FROM [t] ;
func assembleDeleteAll(m *model.TableModel) *QueryBuilder {
	return NewQueryBuilder().
		Write("DELETE", "FROM").Identifier(m.Table).
		End()
}

// assembleDelete DELETE FROM [t] WHERE ( [k] = @k ) ;
func assembleDelete(m *model.TableModel, qualifiers Qualifiers) *QueryBuilder {
	return NewQueryBuilder().
		Write("DELETE", "FROM").Identifier(m.Table).
		WhereFrom(qualifiers.Columns()).
		End()
}

// assembleInsert INSERT INTO [t] ( ... ) VALUES ( ... ) [, ( ... )] ;
// 自增字段由数据库生成，不出现在列表中；rows 大于 1 时第 i 行的参数带 _i 后缀
func assembleInsert(m *model.TableModel, selection Selection, rows int) (*QueryBuilder, error) {
	fields := without(selection.Fields, isIdentity)
	if len(fields) == 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, selection.Command, "", "no insertable field")
	}
	columns := columnsOf(fields)

	b := NewQueryBuilder().
		Write("INSERT", "INTO").Identifier(m.Table).
		OpenParen().Fields(columns).CloseParen().
		Write("VALUES")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.Comma()
		}
		b.OpenParen().Parameters(columns, i).CloseParen()
	}
	return b.End(), nil
}

// assembleUpdate UPDATE [t] SET [c] = @c WHERE ( [k] = @k ) ;
// 限定字段和自增字段不会出现在 SET 中
func assembleUpdate(m *model.TableModel, selection Selection, qualifiers Qualifiers) (*QueryBuilder, error) {
	fields := without(selection.Fields, func(f model.FieldDefinition) bool {
		return f.Identity || qualifiers.Has(f)
	})
	if len(fields) == 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, selection.Command, "", "no updatable field besides the qualifiers")
	}

	return NewQueryBuilder().
		Write("UPDATE").Identifier(m.Table).
		Write("SET").FieldsAndParameters(columnsOf(fields)).
		WhereFrom(qualifiers.Columns()).
		End(), nil
}

// assembleMerge MERGE [t] AS T USING ( SELECT ... ) AS S ON ( ... )
// WHEN NOT MATCHED THEN INSERT ... WHEN MATCHED THEN UPDATE SET ... ;
func assembleMerge(m *model.TableModel, selection Selection, qualifiers Qualifiers) (*QueryBuilder, error) {
	cmd := selection.Command
	for _, q := range qualifiers {
		if !selection.Contains(q.Name) {
			return nil, newCompileError(ErrUnresolvableQualifier, m, cmd, q.Name, "qualifier is not part of the selected fields")
		}
	}

	insertFields := without(selection.Branch(model.CommandInsert), isIdentity)
	if len(insertFields) == 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "no field for the insert branch")
	}

	nonKey := without(selection.Fields, func(f model.FieldDefinition) bool {
		return f.Identity || qualifiers.Has(f)
	})
	updateFields := without(nonKey, func(f model.FieldDefinition) bool {
		return f.IsIgnored(model.CommandUpdate)
	})
	if len(updateFields) == 0 {
		updateFields = nonKey
	}
	if len(updateFields) == 0 {
		return nil, newCompileError(ErrNullOrEmptyInput, m, cmd, "", "no field for the update branch")
	}

	insertColumns := columnsOf(insertFields)
	return NewQueryBuilder().
		Write("MERGE").Identifier(m.Table).Write("AS", "T").
		Write("USING").OpenParen().Write("SELECT").AsFields(selection.Columns()).CloseParen().Write("AS", "S").
		OnFrom("S", "T", qualifiers.Columns()).
		Write("WHEN", "NOT", "MATCHED", "THEN", "INSERT").
		OpenParen().Fields(insertColumns).CloseParen().
		Write("VALUES").
		OpenParen().AliasedFields("S", insertColumns).CloseParen().
		Write("WHEN", "MATCHED", "THEN", "UPDATE", "SET").
		FieldsAndAliasFields("S", columnsOf(updateFields)).
		End(), nil
}

// assembleQuery SELECT [TOP (n)] ... FROM [t] [WHERE ( ... )] [ORDER BY ...] ;
func assembleQuery(m *model.TableModel, selection Selection, qualifiers Qualifiers, orders []OrderField, top int) *QueryBuilder {
	return NewQueryBuilder().
		Write("SELECT").TopFrom(top).Fields(selection.Columns()).
		Write("FROM").Identifier(m.Table).
		WhereFrom(qualifiers.Columns()).
		OrderByFrom(orders).
		End()
}

// assembleBatchQuery 通过 ROW_NUMBER() 分页，page 从 0 开始
func assembleBatchQuery(m *model.TableModel, selection Selection, qualifiers Qualifiers, orders []OrderField, page, rows int) *QueryBuilder {
	from := page*rows + 1
	to := (page + 1) * rows
	columns := selection.Columns()

	return NewQueryBuilder().
		Write("WITH", "CTE", "AS").OpenParen().
		Write("SELECT", "ROW_NUMBER()", "OVER").OpenParen().OrderByFrom(orders).CloseParen().
		Write("AS", "[RowNumber],").Fields(columns).
		Write("FROM").Identifier(m.Table).
		WhereFrom(qualifiers.Columns()).
		CloseParen().
		Write("SELECT").Fields(columns).
		Write("FROM", "CTE", "WHERE").OpenParen().
		Write("[RowNumber]", "BETWEEN", strconv.Itoa(from), "AND", strconv.Itoa(to)).
		CloseParen().
		OrderByFrom(orders).
		End()
}

// assembleAggregate SELECT AVG ([f]) AS [AverageValue] FROM [t] [WHERE ( ... )] ;
// count 固定为 COUNT_BIG (*)
func assembleAggregate(m *model.TableModel, cmd model.Command, column string, qualifiers Qualifiers) *QueryBuilder {
	b := NewQueryBuilder().Write("SELECT")
	if cmd == model.CommandCount {
		b.Write("COUNT_BIG", "(*)", "AS", "[CountValue]")
	} else {
		fn := aggregateFunctions[cmd]
		b.Write(fn[0], "("+QuoteIdentifier(column)+")", "AS", fn[1])
	}
	return b.Write("FROM").Identifier(m.Table).
		WhereFrom(qualifiers.Columns()).
		End()
}
