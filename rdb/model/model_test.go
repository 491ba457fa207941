package model

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Widget struct {
	Field1 int64 `rdb:",primary"`
	Field2 string
	Field3 time.Time
}

type Customer struct {
	CustomerId int64  `rdb:"customer_id,identity"`
	Name       string `rdb:"name"`
	Email      string `rdb:"email,ignore=update|inline_merge"`
	Temp       string `rdb:"-"`
	secret     string
}

type Audit struct {
	CreatedBy string
	UpdatedBy string `rdb:"updated_by,ignore=insert"`
}

type Order struct {
	Audit
	Id     int64 `rdb:"id,pk,auto"`
	Amount float64
}

type ClassName struct {
	Value string
}

type Renamed struct {
	Id   int64
	Name string
}

func (Renamed) TableName() string {
	return "dbo.Renamed"
}

type Tagged struct {
	Id   int64  `table:"tagged_table"`
	Name string `rdb:"column=display_name"`
}

func TestTableModelBuilder(t *testing.T) {
	Convey("TableModelBuilder", t, func() {
		builder := NewTableModelBuilder()

		Convey("字段按声明顺序解析", func() {
			m, err := builder.FromStruct(Widget{})
			So(err, ShouldBeNil)
			So(m.Name, ShouldEqual, "Widget")
			So(m.Table, ShouldEqual, "Widget")
			So(m.Columns(), ShouldResemble, []string{"Field1", "Field2", "Field3"})

			pk, ok := m.Primary()
			So(ok, ShouldBeTrue)
			So(pk.Name, ShouldEqual, "Field1")

			_, ok = m.Identity()
			So(ok, ShouldBeFalse)
		})

		Convey("指针和 reflect.Type 得到相同的模型", func() {
			m1, err := builder.FromStruct(&Widget{})
			So(err, ShouldBeNil)
			m2, err := builder.FromType(reflect.TypeOf(Widget{}))
			So(err, ShouldBeNil)
			So(m1.Columns(), ShouldResemble, m2.Columns())
			// 每次构建都是新的模型，缓存靠 Cache 保证同一类型只构建一次
			So(m1.Key(), ShouldNotEqual, m2.Key())
			So(m1.Key(), ShouldEqual, m1.Key())
		})

		Convey("列名覆盖、identity、ignore 和跳过字段", func() {
			m, err := builder.FromStruct(Customer{})
			So(err, ShouldBeNil)
			So(m.Columns(), ShouldResemble, []string{"customer_id", "name", "email"})

			id, ok := m.Identity()
			So(ok, ShouldBeTrue)
			So(id.Name, ShouldEqual, "CustomerId")

			email, ok := m.Field("EMAIL")
			So(ok, ShouldBeTrue)
			So(email.IsIgnored(CommandUpdate), ShouldBeTrue)
			So(email.IsIgnored(CommandInlineMerge), ShouldBeTrue)
			So(email.IsIgnored(CommandMerge), ShouldBeFalse)
			So(email.Ignore.Commands(), ShouldResemble, []Command{CommandInlineMerge, CommandUpdate})
		})

		Convey("按列名或带括号的名字查找字段", func() {
			m, err := builder.FromStruct(Customer{})
			So(err, ShouldBeNil)
			f, ok := m.Field("[customer_id]")
			So(ok, ShouldBeTrue)
			So(f.Name, ShouldEqual, "CustomerId")
			_, ok = m.Field("Temp")
			So(ok, ShouldBeFalse)
		})

		Convey("匿名结构体字段展开", func() {
			m, err := builder.FromStruct(Order{})
			So(err, ShouldBeNil)
			So(m.Columns(), ShouldResemble, []string{"CreatedBy", "updated_by", "id", "Amount"})

			f, ok := m.Field("UpdatedBy")
			So(ok, ShouldBeTrue)
			So(f.Index, ShouldResemble, []int{0, 1})
			So(f.IsIgnored(CommandInsert), ShouldBeTrue)

			id, _ := m.Field("Id")
			So(id.Primary, ShouldBeTrue)
			So(id.Identity, ShouldBeTrue)
			So(id.Index, ShouldResemble, []int{1})
		})

		Convey("TableName 方法优先于 table tag", func() {
			m, err := builder.FromStruct(Renamed{})
			So(err, ShouldBeNil)
			So(m.Name, ShouldEqual, "Renamed")
			So(m.Table, ShouldEqual, "dbo.Renamed")

			m, err = builder.FromStruct(Tagged{})
			So(err, ShouldBeNil)
			So(m.Table, ShouldEqual, "tagged_table")
			So(m.Columns(), ShouldResemble, []string{"Id", "display_name"})

			m, err = builder.FromStruct(ClassName{})
			So(err, ShouldBeNil)
			So(m.Table, ShouldEqual, "ClassName")
		})

		Convey("第一段总是列名，选项前需要逗号", func() {
			type leading struct {
				A int `rdb:"primary"`
				B int `rdb:",primary"`
			}
			m, err := builder.FromStruct(leading{})
			So(err, ShouldBeNil)
			So(m.Columns(), ShouldResemble, []string{"primary", "B"})
			pk, ok := m.Primary()
			So(ok, ShouldBeTrue)
			So(pk.Name, ShouldEqual, "B")
		})

		Convey("非法定义", func() {
			_, err := builder.FromStruct(42)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)

			_, err = builder.FromStruct(nil)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)

			type twoPrimary struct {
				A int `rdb:",primary"`
				B int `rdb:",primary"`
			}
			_, err = builder.FromStruct(twoPrimary{})
			So(errors.Is(err, ErrMultiplePrimary), ShouldBeTrue)

			type twoIdentity struct {
				A int `rdb:",identity"`
				B int `rdb:",identity"`
			}
			_, err = builder.FromStruct(twoIdentity{})
			So(errors.Is(err, ErrMultipleIdentity), ShouldBeTrue)

			type duplicate struct {
				A int `rdb:"x"`
				B int `rdb:"X"`
			}
			_, err = builder.FromStruct(duplicate{})
			So(errors.Is(err, ErrDuplicateColumn), ShouldBeTrue)

			type unknownOption struct {
				A int `rdb:"a,unique"`
			}
			_, err = builder.FromStruct(unknownOption{})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)

			type unknownCommand struct {
				A int `rdb:"a,ignore=upsert"`
			}
			_, err = builder.FromStruct(unknownCommand{})
			So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)
		})
	})
}

func TestFromDeclaration(t *testing.T) {
	Convey("FromDeclaration", t, func() {
		builder := NewTableModelBuilder()

		Convey("声明与结构体等价", func() {
			m, err := builder.FromDeclaration(&Declaration{
				Name: "Widget",
				Fields: []FieldDeclaration{
					{Name: "Field1", Primary: true},
					{Name: "Field2"},
					{Name: "Field3", Column: "f3", Ignore: []string{"update", "Inline-Merge"}},
				},
			})
			So(err, ShouldBeNil)
			So(m.Table, ShouldEqual, "Widget")
			So(m.Type, ShouldBeNil)
			So(m.Columns(), ShouldResemble, []string{"Field1", "Field2", "f3"})
			So(m.Key(), ShouldEndWith, ":Widget:Widget")

			f, _ := m.Field("Field3")
			So(f.IsIgnored(CommandUpdate), ShouldBeTrue)
			So(f.IsIgnored(CommandInlineMerge), ShouldBeTrue)
		})

		Convey("缺少名字", func() {
			_, err := builder.FromDeclaration(&Declaration{})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)

			_, err = builder.FromDeclaration(&Declaration{Name: "X", Fields: []FieldDeclaration{{}}})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})

		Convey("未知命令", func() {
			_, err := builder.FromDeclaration(&Declaration{
				Name:   "X",
				Fields: []FieldDeclaration{{Name: "A", Ignore: []string{"truncate"}}},
			})
			So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)
		})
	})
}

func TestParseCommand(t *testing.T) {
	Convey("ParseCommand", t, func() {
		for name, want := range map[string]Command{
			"insert":       CommandInsert,
			"INSERT":       CommandInsert,
			"delete_all":   CommandDeleteAll,
			"inline-merge": CommandInlineMerge,
			"InlineMerge":  CommandInlineMerge,
			"batch query":  CommandBatchQuery,
			"avg":          CommandAverage,
			"bulkInsert":   CommandBulkInsert,
		} {
			cmd, err := ParseCommand(name)
			So(err, ShouldBeNil)
			So(cmd, ShouldEqual, want)
		}

		_, err := ParseCommand("upsert")
		So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)

		So(CommandSum.IsAggregate(), ShouldBeTrue)
		So(CommandQuery.IsAggregate(), ShouldBeFalse)
		So(CommandInlineMerge.IsMergeFamily(), ShouldBeTrue)
		So(CommandInsert.IsMergeFamily(), ShouldBeFalse)
	})
}

func localWithX() any {
	type Local struct {
		Id int64
		X  string
	}
	return Local{}
}

func localWithYZ() any {
	type Local struct {
		Id int64
		Y  string
		Z  string
	}
	return Local{}
}

func TestCache(t *testing.T) {
	Convey("Cache", t, func() {
		cache := NewCache()

		Convey("同一类型只构建一次", func() {
			m1, err := cache.Resolve(Widget{})
			So(err, ShouldBeNil)
			m2, err := cache.Resolve(&Widget{})
			So(err, ShouldBeNil)
			m3, err := cache.Resolve(reflect.TypeOf(Widget{}))
			So(err, ShouldBeNil)
			So(m1, ShouldPointTo, m2)
			So(m1, ShouldPointTo, m3)
		})

		Convey("并发解析得到同一个实例", func() {
			var wg sync.WaitGroup
			var distinct atomic.Int32
			first, _ := cache.Resolve(Customer{})
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					m, err := cache.Resolve(Customer{})
					if err != nil || m != first {
						distinct.Add(1)
					}
				}()
			}
			wg.Wait()
			So(distinct.Load(), ShouldEqual, 0)
		})

		Convey("同名的局部类型得到不同的模型", func() {
			a, err := cache.Resolve(localWithX())
			So(err, ShouldBeNil)
			b, err := cache.Resolve(localWithYZ())
			So(err, ShouldBeNil)
			So(a.Name, ShouldEqual, b.Name)
			So(a.Columns(), ShouldResemble, []string{"Id", "X"})
			So(b.Columns(), ShouldResemble, []string{"Id", "Y", "Z"})
			So(a.Key(), ShouldNotEqual, b.Key())

			var wg sync.WaitGroup
			var wrong atomic.Int32
			for i := 0; i < 32; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					if m, _ := cache.Resolve(localWithX()); m != a {
						wrong.Add(1)
					}
				}()
				go func() {
					defer wg.Done()
					if m, _ := cache.Resolve(localWithYZ()); m != b {
						wrong.Add(1)
					}
				}()
			}
			wg.Wait()
			So(wrong.Load(), ShouldEqual, 0)
		})

		Convey("构建错误也被缓存", func() {
			type broken struct {
				A int `rdb:",primary"`
				B int `rdb:",primary"`
			}
			_, err1 := cache.Resolve(broken{})
			_, err2 := cache.Resolve(broken{})
			So(errors.Is(err1, ErrMultiplePrimary), ShouldBeTrue)
			So(err2, ShouldEqual, err1)
		})

		Convey("按名字注册和清空", func() {
			m, err := NewTableModelBuilder().FromDeclaration(&Declaration{
				Name:   "Declared",
				Fields: []FieldDeclaration{{Name: "Id"}},
			})
			So(err, ShouldBeNil)
			So(cache.Register(m), ShouldBeNil)

			got, err := cache.Lookup("Declared")
			So(err, ShouldBeNil)
			So(got, ShouldPointTo, m)
			So(cache.Names(), ShouldResemble, []string{"Declared"})

			cache.Clear()
			_, err = cache.Lookup("Declared")
			So(errors.Is(err, ErrModelNotFound), ShouldBeTrue)

			So(errors.Is(cache.Register(nil), ErrInvalidModel), ShouldBeTrue)
		})
	})
}

func TestSchema(t *testing.T) {
	Convey("Schema", t, func() {
		dir := t.TempDir()

		Convey("从 yaml 加载并注册", func() {
			filename := filepath.Join(dir, "schema.yaml")
			So(os.WriteFile(filename, []byte(`
records:
  - name: Widget
    fields:
      - name: Field1
        primary: true
      - name: Field2
      - name: Field3
        ignore: [update]
  - name: Account
    table: dbo.Account
    fields:
      - name: AccountId
        column: account_id
        identity: true
      - name: Owner
`), 0644), ShouldBeNil)

			schema, err := LoadSchema(filename)
			So(err, ShouldBeNil)
			So(len(schema.Records), ShouldEqual, 2)

			cache := NewCache()
			So(schema.Register(cache), ShouldBeNil)

			widget, err := cache.Lookup("Widget")
			So(err, ShouldBeNil)
			So(widget.Columns(), ShouldResemble, []string{"Field1", "Field2", "Field3"})
			f3, _ := widget.Field("Field3")
			So(f3.IsIgnored(CommandUpdate), ShouldBeTrue)

			account, err := cache.Lookup("Account")
			So(err, ShouldBeNil)
			So(account.Table, ShouldEqual, "dbo.Account")
			id, ok := account.Identity()
			So(ok, ShouldBeTrue)
			So(id.Column, ShouldEqual, "account_id")
		})

		Convey("从 json 加载", func() {
			filename := filepath.Join(dir, "schema.json")
			So(os.WriteFile(filename, []byte(`{"records": [{"name": "Widget", "fields": [{"name": "Id"}]}]}`), 0644), ShouldBeNil)

			schema, err := LoadSchema(filename)
			So(err, ShouldBeNil)
			models, err := schema.Models()
			So(err, ShouldBeNil)
			So(len(models), ShouldEqual, 1)
			So(models[0].Table, ShouldEqual, "Widget")
		})

		Convey("记录缺少名字时校验失败", func() {
			filename := filepath.Join(dir, "invalid.yaml")
			So(os.WriteFile(filename, []byte("records:\n  - table: X\n"), 0644), ShouldBeNil)
			_, err := LoadSchema(filename)
			So(err, ShouldNotBeNil)
		})

		Convey("重复声明", func() {
			schema := &Schema{Records: []Declaration{
				{Name: "A", Fields: []FieldDeclaration{{Name: "Id"}}},
				{Name: "A", Fields: []FieldDeclaration{{Name: "Id"}}},
			}}
			_, err := schema.Models()
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})
	})
}
