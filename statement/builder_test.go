package statement

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/mapping"
	"github.com/hatlonely/declsql/predicate"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Person struct {
	_           struct{} `table:"dbo.Person"`
	Id          int64    `rdb:",autoIncrement"`
	Name        string   `rdb:"名前"`
	Age         int      `rdb:",sequence@sqlserver=AgeSeq"`
	HasChildren bool
}

type Article struct {
	Id         int64 `rdb:",autoIncrement"`
	Title      string
	CreatedAt  time.Time `rdb:",createdAt,default=CURRENT_TIMESTAMP"`
	ModifiedAt time.Time `rdb:",modifiedAt,default=CURRENT_TIMESTAMP"`
}

func TestCount(t *testing.T) {
	Convey("测试 Count 语句", t, func() {
		qb := NewQueryBuilder(dialect.SQLServer, nil)

		q, err := Count[Person](qb).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "select count(*) as Count from [dbo].[Person]")
		So(q.Parameters.Len(), ShouldEqual, 0)

		q, err = Count[Person](qb).Where(predicate.Gt("Age", 20)).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "select count(*) as Count from [dbo].[Person]\nwhere\n    Age > @p0")
		So(q.Parameters.Map(), ShouldResemble, map[string]any{"p0": 20})
	})
}

func TestSelect(t *testing.T) {
	Convey("测试 Select 语句", t, func() {
		qb := NewQueryBuilder(dialect.SQLServer, nil)

		Convey("所有列", func() {
			q, err := Select[Person](qb).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, `select
    [Id] as Id,
    [名前] as Name,
    [Age] as Age,
    [HasChildren] as HasChildren
from [dbo].[Person]`)
		})

		Convey("指定列时保持给定顺序", func() {
			q, err := Select[Person](qb, "Age", "Name").Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "select\n    [Age] as Age,\n    [名前] as Name\nfrom [dbo].[Person]")
		})

		Convey("带条件", func() {
			q, err := Select[Person](qb, "Name").
				Where(predicate.Or(predicate.And(predicate.Gt("Id", 1), predicate.Eq("Name", "abc")), predicate.Le("Age", 30))).
				Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "select\n    [名前] as Name\nfrom [dbo].[Person]\nwhere\n    (Id > @p0 and 名前 = @p1) or Age <= @p2")
			So(q.Parameters.Names(), ShouldResemble, []string{"p0", "p1", "p2"})
		})

		Convey("未映射的字段返回错误", func() {
			_, err := Select[Person](qb, "Name", "Unknown").Build()
			So(err, ShouldNotBeNil)
		})

		Convey("翻译失败时不返回语句", func() {
			q, err := Select[Person](qb).Where(predicate.Eq("Id", predicate.Member("Age"))).Build()
			So(q, ShouldBeNil)
			var te *predicate.TranslationError
			So(errors.As(err, &te), ShouldBeTrue)
		})

		Convey("所有方言都按声明顺序列出每一列", func() {
			for _, d := range dialect.All() {
				q, err := Select[Person](NewQueryBuilder(d, nil)).Build()
				So(err, ShouldBeNil)
				for _, member := range []string{"Id", "Name", "Age", "HasChildren"} {
					So(strings.Count(q.Statement, " as "+member+",")+strings.Count(q.Statement, " as "+member+"\n"), ShouldEqual, 1)
				}
				So(strings.Index(q.Statement, " as Id"), ShouldBeLessThan, strings.Index(q.Statement, " as HasChildren"))
			}
		})
	})
}

func TestInsert(t *testing.T) {
	Convey("测试 Insert 语句", t, func() {
		qb := NewQueryBuilder(dialect.SQLServer, nil)

		Convey("使用序列", func() {
			q, err := Insert[Person](qb).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, `insert into [dbo].[Person]
(
    [名前],
    [Age],
    [HasChildren]
)
values
(
    @Name,
    next value for [dbo].[AgeSeq],
    @HasChildren
)`)
			So(q.Parameters.Names(), ShouldResemble, []string{"Name", "HasChildren"})
		})

		Convey("不使用序列", func() {
			q, err := Insert[Person](qb, WithoutSequence()).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "insert into [dbo].[Person]\n(\n    [名前],\n    [Age],\n    [HasChildren]\n)\nvalues\n(\n    @Name,\n    @Age,\n    @HasChildren\n)")
			So(q.Parameters.Names(), ShouldResemble, []string{"Name", "Age", "HasChildren"})
		})

		Convey("包含自增列", func() {
			q, err := Insert[Person](qb, WithoutSequence(), WithIdentity()).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldStartWith, "insert into [dbo].[Person]\n(\n    [Id],\n    [名前],")
			So(q.Parameters.Names(), ShouldResemble, []string{"Id", "Name", "Age", "HasChildren"})
		})

		Convey("不支持序列的数据库绑定参数", func() {
			q, err := Insert[Person](NewQueryBuilder(dialect.MySQL, nil)).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "insert into `dbo`.`Person`\n(\n    `名前`,\n    `Age`,\n    `HasChildren`\n)\nvalues\n(\n    @Name,\n    @Age,\n    @HasChildren\n)")
		})

		Convey("创建时间优先使用默认值", func() {
			qb := NewQueryBuilder(dialect.SQLite, nil)
			q, err := Insert[Article](qb, WithValuePriority(PriorityAttribute)).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, `insert into "Article"
(
    "Title",
    "CreatedAt",
    "ModifiedAt"
)
values
(
    @Title,
    CURRENT_TIMESTAMP,
    CURRENT_TIMESTAMP
)`)
			So(q.Parameters.Names(), ShouldResemble, []string{"Title"})

			q, err = Insert[Article](qb).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldContainSubstring, "@CreatedAt,\n    @ModifiedAt\n)")
			So(q.Parameters.Names(), ShouldResemble, []string{"Title", "CreatedAt", "ModifiedAt"})
		})

		Convey("替换关键字", func() {
			q, err := Insert[Article](NewQueryBuilder(dialect.MySQL, nil), WithKeyword("insert ignore into")).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldStartWith, "insert ignore into `Article`\n(")
		})

		Convey("任何方言都不包含自增列", func() {
			for _, d := range dialect.All() {
				q, err := Insert[Person](NewQueryBuilder(d, nil)).Build()
				So(err, ShouldBeNil)
				So(q.Statement, ShouldNotContainSubstring, d.Quote("Id"))
				So(q.Parameters.Has("Id"), ShouldBeFalse)
			}
		})
	})
}

func TestUpdate(t *testing.T) {
	Convey("测试 Update 语句", t, func() {
		qb := NewQueryBuilder(dialect.SQLServer, nil)

		Convey("所有非自增列", func() {
			q, err := Update[Person](qb).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, `update [dbo].[Person]
set
    [名前] = @Name,
    [Age] = @Age,
    [HasChildren] = @HasChildren`)
			So(q.Parameters.Names(), ShouldResemble, []string{"Name", "Age", "HasChildren"})
		})

		Convey("指定字段，忽略不存在的字段", func() {
			q, err := Update[Person](qb, WithMembers("Age", "Name", "Unknown")).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "update [dbo].[Person]\nset\n    [名前] = @Name,\n    [Age] = @Age")
		})

		Convey("包含自增列", func() {
			q, err := Update[Person](qb, WithUpdateIdentity(), WithMembers("Id")).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "update [dbo].[Person]\nset\n    [Id] = @Id")
		})

		Convey("带条件时合并参数", func() {
			q, err := Update[Person](qb, WithMembers("Name")).Where(predicate.Eq("Id", 3)).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "update [dbo].[Person]\nset\n    [名前] = @Name\nwhere\n    Id = @p0")
			So(q.Parameters.Names(), ShouldResemble, []string{"Name", "p0"})
			v, _ := q.Parameters.Get("p0")
			So(v, ShouldEqual, 3)
		})

		Convey("更新时间优先使用默认值", func() {
			q, err := Update[Article](NewQueryBuilder(dialect.SQLite, nil), WithUpdatePriority(PriorityAttribute)).Build()
			So(err, ShouldBeNil)
			So(q.Statement, ShouldEqual, "update \"Article\"\nset\n    \"Title\" = @Title,\n    \"CreatedAt\" = @CreatedAt,\n    \"ModifiedAt\" = CURRENT_TIMESTAMP")
			So(q.Parameters.Names(), ShouldResemble, []string{"Title", "CreatedAt"})
		})

		Convey("没有可更新的列返回错误", func() {
			_, err := Update[Person](qb, WithMembers("Unknown")).Build()
			So(err, ShouldNotBeNil)
		})

		Convey("参数名冲突返回错误", func() {
			type Odd struct{}
			resolver := mapping.NewStaticResolver(nil)
			mapping.RegisterType[Odd](resolver, &mapping.Metadata{
				Columns: []mapping.ColumnMetadata{{Member: "Id"}, {Member: "p0"}},
			})
			qb := NewQueryBuilder(dialect.SQLite, mapping.NewCache(resolver))
			_, err := Update[Odd](qb).Where(predicate.Eq("Id", 1)).Build()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDeleteAndTruncate(t *testing.T) {
	Convey("测试 Delete 与 Truncate 语句", t, func() {
		qb := NewQueryBuilder(dialect.SQLServer, nil)

		q, err := Delete[Person](qb).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "delete from [dbo].[Person]")

		q, err = Delete[Person](qb).Where(predicate.In("Id", []int{1, 2})).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "delete from [dbo].[Person]\nwhere\n    Id in @p0")

		q, err = Truncate[Person](qb).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "truncate table [dbo].[Person]")
		So(q.Parameters.Len(), ShouldEqual, 0)
	})
}

func TestWhereFragment(t *testing.T) {
	Convey("测试组合片段作为条件", t, func() {
		qb := NewQueryBuilder(dialect.PostgreSQL, nil)
		left, err := Where[Person](qb, predicate.Gt("Id", 1))
		So(err, ShouldBeNil)
		right, err := Where[Person](qb, predicate.Or(predicate.True("HasChildren"), predicate.IsNull("Name")))
		So(err, ShouldBeNil)
		f, err := left.And(right)
		So(err, ShouldBeNil)

		q, err := Delete[Person](qb).WhereFragment(f).Build()
		So(err, ShouldBeNil)
		So(q.Statement, ShouldEqual, "delete from \"dbo\".\"Person\"\nwhere\n    Id > :p0 and (HasChildren = :p1 or 名前 is null)")
		So(q.Parameters.Map(), ShouldResemble, map[string]any{"p0": 1, "p1": true})

		Convey("方言不一致返回错误", func() {
			_, err := Delete[Person](NewQueryBuilder(dialect.SQLServer, nil)).WhereFragment(f).Build()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBuildErrors(t *testing.T) {
	Convey("测试构建失败", t, func() {
		cache := mapping.NewCache(mapping.ResolverFunc(func(t reflect.Type) (*mapping.Metadata, error) {
			return nil, errors.New("no metadata")
		}))
		qb := NewQueryBuilder(dialect.SQLite, cache)

		for _, build := range []func() (*Query, error){
			Count[Person](qb).Build,
			Select[Person](qb).Build,
			Insert[Person](qb).Build,
			Update[Person](qb).Build,
			Delete[Person](qb).Build,
			Truncate[Person](qb).Build,
			NewDeleteBuilder(nil).Build,
		} {
			q, err := build()
			So(q, ShouldBeNil)
			So(err, ShouldNotBeNil)
		}
	})

	Convey("测试重复构建结果相同", t, func() {
		qb := NewQueryBuilder(dialect.Oracle, nil)
		b := Select[Person](qb).Where(predicate.And(predicate.In("Id", make([]int, 1200)), predicate.False("HasChildren")))
		q1, err := b.Build()
		So(err, ShouldBeNil)
		q2, err := b.Build()
		So(err, ShouldBeNil)
		So(q1.Statement, ShouldEqual, q2.Statement)
		So(q1.Parameters.Names(), ShouldResemble, q2.Parameters.Names())
	})
}
