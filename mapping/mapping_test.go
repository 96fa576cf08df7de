package mapping

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hatlonely/declsql/dialect"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Person struct {
	_           struct{}  `table:"dbo.Person,postgres=people.person"`
	Id          int64     `rdb:",autoIncrement"`
	Name        string    `rdb:"名前"`
	Age         int       `rdb:",sequence@sqlserver=AgeSeq,sequence@postgres=people.age_seq"`
	HasChildren bool      `rdb:",column@oracle=HAS_CHILDREN"`
	CreatedAt   time.Time `rdb:",createdAt,default=CURRENT_TIMESTAMP,default@sqlserver=SYSDATETIME()"`
	ModifiedAt  time.Time `rdb:",modifiedAt,default=CURRENT_TIMESTAMP,default@sqlserver=SYSDATETIME()"`
	Memo        string    `rdb:"-"`
	secret      string
}

type auditFields struct {
	CreatedAt time.Time `rdb:",createdAt"`
}

type Article struct {
	auditFields
	Id    int64
	Title string
}

type Comment struct {
	Id   int64 `rdb:",autoIncrement"`
	Body string
}

func (c *Comment) TableName() string {
	return "blog.comments"
}

func TestTagResolver(t *testing.T) {
	Convey("测试 tag 解析", t, func() {
		md, err := NewTagResolver().Resolve(reflect.TypeOf(&Person{}))
		So(err, ShouldBeNil)
		So(md.Schema, ShouldEqual, "dbo")
		So(md.Name, ShouldEqual, "Person")
		So(md.Tables[dialect.KindPostgreSQL], ShouldResemble, TableOverride{Schema: "people", Name: "person"})

		var members []string
		for _, c := range md.Columns {
			members = append(members, c.Member)
		}
		So(members, ShouldResemble, []string{"Id", "Name", "Age", "HasChildren", "CreatedAt", "ModifiedAt"})
		So(md.Columns[0].AutoIncrement, ShouldBeTrue)
		So(md.Columns[1].Column, ShouldEqual, "名前")
		So(md.Columns[2].Sequences[dialect.KindSQLServer], ShouldEqual, "AgeSeq")
		So(md.Columns[3].Columns[dialect.KindOracle], ShouldEqual, "HAS_CHILDREN")
		So(md.Columns[4].CreatedAt, ShouldBeTrue)
		So(md.Columns[4].Defaults[dialect.KindSQLServer], ShouldEqual, "SYSDATETIME()")
		So(md.Columns[5].ModifiedAt, ShouldBeTrue)

		Convey("展开匿名嵌入字段", func() {
			md, err := NewTagResolver().Resolve(reflect.TypeOf(Article{}))
			So(err, ShouldBeNil)
			So(md.Columns, ShouldHaveLength, 3)
			So(md.Columns[0].Member, ShouldEqual, "CreatedAt")
			So(md.Columns[0].CreatedAt, ShouldBeTrue)
		})

		Convey("TableName 方法覆盖表名", func() {
			md, err := NewTagResolver().Resolve(reflect.TypeOf(Comment{}))
			So(err, ShouldBeNil)
			So(md.Schema, ShouldEqual, "blog")
			So(md.Name, ShouldEqual, "comments")
		})

		Convey("未知选项返回 MappingError", func() {
			type Bad struct {
				Id int64 `rdb:",primary"`
			}
			_, err := NewTagResolver().Resolve(reflect.TypeOf(Bad{}))
			var me *MappingError
			So(errors.As(err, &me), ShouldBeTrue)

			type BadKind struct {
				Id int64 `rdb:",default@db2=1"`
			}
			_, err = NewTagResolver().Resolve(reflect.TypeOf(BadKind{}))
			So(errors.As(err, &me), ShouldBeTrue)
		})

		Convey("非结构体类型返回错误", func() {
			_, err := NewTagResolver().Resolve(reflect.TypeOf(1))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTable(t *testing.T) {
	Convey("测试表描述", t, func() {
		cache := NewCache(nil)

		Convey("SQL Server", func() {
			table, err := TableOf[Person](cache, dialect.SQLServer)
			So(err, ShouldBeNil)
			So(table.FullName(), ShouldEqual, "[dbo].[Person]")
			So(table.Columns(), ShouldHaveLength, 6)

			age, ok := table.Column("Age")
			So(ok, ShouldBeTrue)
			So(age.Sequence(), ShouldEqual, "next value for [dbo].[AgeSeq]")

			created, _ := table.Column("CreatedAt")
			So(created.DefaultValue(), ShouldEqual, "SYSDATETIME()")

			name, _ := table.Column("Name")
			So(name.ColumnName(), ShouldEqual, "名前")

			_, ok = table.Column("Memo")
			So(ok, ShouldBeFalse)
		})

		Convey("按数据库覆盖表名", func() {
			table, err := TableOf[Person](cache, dialect.PostgreSQL)
			So(err, ShouldBeNil)
			So(table.FullName(), ShouldEqual, `"people"."person"`)

			age, _ := table.Column("Age")
			So(age.Sequence(), ShouldEqual, `nextval('"people"."age_seq"')`)
		})

		Convey("不支持序列的数据库忽略序列", func() {
			table, err := TableOf[Person](cache, dialect.MySQL)
			So(err, ShouldBeNil)
			So(table.FullName(), ShouldEqual, "`dbo`.`Person`")

			age, _ := table.Column("Age")
			So(age.Sequence(), ShouldBeEmpty)

			created, _ := table.Column("CreatedAt")
			So(created.DefaultValue(), ShouldEqual, "CURRENT_TIMESTAMP")
		})

		Convey("按数据库覆盖列名", func() {
			table, err := TableOf[Person](cache, dialect.Oracle)
			So(err, ShouldBeNil)
			c, _ := table.Column("HasChildren")
			So(c.ColumnName(), ShouldEqual, "HAS_CHILDREN")
		})

		Convey("未指定 schema 时使用默认 schema", func() {
			table, err := TableOf[Article](cache, dialect.SQLServer)
			So(err, ShouldBeNil)
			So(table.FullName(), ShouldEqual, "[dbo].[Article]")

			table, err = TableOf[Article](cache, dialect.SQLite)
			So(err, ShouldBeNil)
			So(table.FullName(), ShouldEqual, `"Article"`)
		})

		Convey("Columns 返回副本", func() {
			table, _ := TableOf[Person](cache, dialect.SQLite)
			columns := table.Columns()
			columns[0] = nil
			So(table.Columns()[0], ShouldNotBeNil)
		})

		Convey("重复字段返回 MappingError", func() {
			_, err := NewTable(reflect.TypeOf(Person{}), &Metadata{
				Columns: []ColumnMetadata{{Member: "Id"}, {Member: "Id"}},
			}, dialect.SQLite)
			var me *MappingError
			So(errors.As(err, &me), ShouldBeTrue)
		})
	})
}

func TestCache(t *testing.T) {
	Convey("测试缓存", t, func() {
		var calls int32
		resolver := ResolverFunc(func(t reflect.Type) (*Metadata, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(10 * time.Millisecond)
			return NewTagResolver().Resolve(t)
		})
		cache := NewCache(resolver)

		Convey("并发首次访问只构建一次", func() {
			var wg sync.WaitGroup
			tables := make([]*Table, 32)
			for i := range tables {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					tables[i], _ = cache.Get(reflect.TypeOf(Person{}), dialect.KindSQLServer)
				}(i)
			}
			wg.Wait()

			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			for _, table := range tables {
				So(table, ShouldEqual, tables[0])
			}

			// 指针类型与值类型共用缓存
			table, err := cache.Get(reflect.TypeOf(&Person{}), dialect.KindMySQL)
			So(err, ShouldBeNil)
			So(table.Dialect(), ShouldEqual, dialect.MySQL)
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
		})

		Convey("同名的不同类型并发构建互不影响", func() {
			recA, recB := localRecA(), localRecB()
			So(recA.String(), ShouldEqual, recB.String())

			entered := make(chan struct{})
			release := make(chan struct{})
			cache := NewCache(ResolverFunc(func(t reflect.Type) (*Metadata, error) {
				if t == recA {
					close(entered)
					<-release
				}
				return NewTagResolver().Resolve(t)
			}))

			tableA := make(chan *Table, 1)
			go func() {
				table, _ := cache.Get(recA, dialect.KindSQLite)
				tableA <- table
			}()
			<-entered

			tableB := make(chan *Table, 1)
			go func() {
				table, _ := cache.Get(recB, dialect.KindSQLite)
				tableB <- table
			}()

			var b *Table
			select {
			case b = <-tableB:
			case <-time.After(2 * time.Second):
			}
			close(release)
			if b == nil {
				b = <-tableB
			}
			a := <-tableA

			So(a.Type(), ShouldEqual, recA)
			So(b.Type(), ShouldEqual, recB)
			_, ok := b.Column("Label")
			So(ok, ShouldBeTrue)
			_, ok = b.Column("Count")
			So(ok, ShouldBeFalse)
		})

		Convey("未知数据库返回 UnsupportedProviderError", func() {
			_, err := cache.Get(reflect.TypeOf(Person{}), dialect.Kind("db2"))
			var upe *dialect.UnsupportedProviderError
			So(errors.As(err, &upe), ShouldBeTrue)
		})

		Convey("构建失败不缓存", func() {
			var fail int32 = 1
			cache := NewCache(ResolverFunc(func(t reflect.Type) (*Metadata, error) {
				if atomic.CompareAndSwapInt32(&fail, 1, 0) {
					return nil, errors.New("boom")
				}
				return NewTagResolver().Resolve(t)
			}))

			_, err := cache.Get(reflect.TypeOf(Person{}), dialect.KindSQLite)
			So(err, ShouldNotBeNil)
			table, err := cache.Get(reflect.TypeOf(Person{}), dialect.KindSQLite)
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "Person")
		})
	})
}

func localRecA() reflect.Type {
	type Rec struct {
		Id    int64
		Count int
	}
	return reflect.TypeOf(Rec{})
}

func localRecB() reflect.Type {
	type Rec struct {
		Id    int64
		Label string
	}
	return reflect.TypeOf(Rec{})
}

func TestStaticResolver(t *testing.T) {
	Convey("测试显式注册", t, func() {
		resolver := NewStaticResolver(nil)
		RegisterType[Article](resolver, &Metadata{
			Schema: "blog",
			Name:   "posts",
			Columns: []ColumnMetadata{
				{Member: "Id", AutoIncrement: true},
				{Member: "Title", Column: "title"},
			},
		})
		cache := NewCache(resolver)

		table, err := TableOf[Article](cache, dialect.SQLServer)
		So(err, ShouldBeNil)
		So(table.FullName(), ShouldEqual, "[blog].[posts]")
		So(table.Columns(), ShouldHaveLength, 2)

		_, err = TableOf[Person](cache, dialect.SQLServer)
		var me *MappingError
		So(errors.As(err, &me), ShouldBeTrue)

		Convey("未注册的类型交给 fallback", func() {
			cache := NewCache(NewStaticResolver(NewTagResolver()))
			table, err := TableOf[Person](cache, dialect.SQLServer)
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "Person")
		})
	})
}
