package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind 数据库类型
type Kind string

const (
	KindSQLServer  Kind = "sqlserver"
	KindMySQL      Kind = "mysql"
	KindSQLite     Kind = "sqlite"
	KindPostgreSQL Kind = "postgres"
	KindOracle     Kind = "oracle"
)

// InListLimit in 子句单次允许的最大元素个数
const InListLimit = 1000

// Bracket 标识符引用符号
type Bracket struct {
	Begin string
	End   string
}

// IdentityStrategy 自增主键的生成方式
type IdentityStrategy int

const (
	// IdentityAutoIncrement 由自增列生成
	IdentityAutoIncrement IdentityStrategy = iota
	// IdentitySequence 由序列生成
	IdentitySequence
)

// PlaceholderStyle 驱动层占位符格式
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1, $2
	PlaceholderAtP                              // @p1, @p2
	PlaceholderColon                            // :1, :2
)

// Dialect 数据库方言，进程内只读
type Dialect struct {
	kind          Kind
	bracket       Bracket
	prefix        string
	defaultSchema string
	inListLimit   int
	identity      IdentityStrategy
	placeholder   PlaceholderStyle
	sequenceFmt   string
}

func (d *Dialect) Kind() Kind { return d.kind }

func (d *Dialect) Bracket() Bracket { return d.bracket }

// BindParameterPrefix 语句中绑定参数的前缀，如 @ 或 :
func (d *Dialect) BindParameterPrefix() string { return d.prefix }

func (d *Dialect) DefaultSchema() string { return d.defaultSchema }

func (d *Dialect) InListLimit() int { return d.inListLimit }

func (d *Dialect) Identity() IdentityStrategy { return d.identity }

func (d *Dialect) PlaceholderStyle() PlaceholderStyle { return d.placeholder }

func (d *Dialect) String() string {
	return string(d.kind)
}

// Quote 使用方言的引用符号包裹标识符
func (d *Dialect) Quote(name string) string {
	return d.bracket.Begin + name + d.bracket.End
}

// QualifiedName 生成 schema.name 形式的完整名称，schema 为空时只引用 name
func (d *Dialect) QualifiedName(schema, name string) string {
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

// BindName 生成带前缀的绑定参数名，如 @p0、:Name
func (d *Dialect) BindName(name string) string {
	return d.prefix + name
}

// SupportsSequence 是否支持序列
func (d *Dialect) SupportsSequence() bool {
	return d.sequenceFmt != ""
}

// SequenceNextValue 生成取序列下一个值的表达式
// sequence 形如 "schema.name" 或 "name"，未指定 schema 时使用默认 schema
func (d *Dialect) SequenceNextValue(sequence string) (string, error) {
	if !d.SupportsSequence() {
		return "", errors.Errorf("dialect %s does not support sequences", d.kind)
	}
	schema, name := SplitQualifiedName(sequence)
	if schema == "" {
		schema = d.defaultSchema
	}
	return fmt.Sprintf(d.sequenceFmt, d.QualifiedName(schema, name)), nil
}

// Placeholder 生成驱动层的第 index 个占位符，index 从 0 开始
func (d *Dialect) Placeholder(index int) string {
	switch d.placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index+1)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(index+1)
	case PlaceholderColon:
		return ":" + strconv.Itoa(index+1)
	default:
		return "?"
	}
}

// SplitQualifiedName 将 "schema.name" 拆分为 schema 和 name
func SplitQualifiedName(s string) (string, string) {
	if idx := strings.LastIndex(s, "."); idx != -1 {
		return s[:idx], s[idx+1:]
	}
	return "", s
}

var (
	SQLServer = &Dialect{
		kind:          KindSQLServer,
		bracket:       Bracket{Begin: "[", End: "]"},
		prefix:        "@",
		defaultSchema: "dbo",
		inListLimit:   InListLimit,
		identity:      IdentityAutoIncrement,
		placeholder:   PlaceholderAtP,
		sequenceFmt:   "next value for %s",
	}
	MySQL = &Dialect{
		kind:        KindMySQL,
		bracket:     Bracket{Begin: "`", End: "`"},
		prefix:      "@",
		inListLimit: InListLimit,
		identity:    IdentityAutoIncrement,
		placeholder: PlaceholderQuestion,
	}
	SQLite = &Dialect{
		kind:        KindSQLite,
		bracket:     Bracket{Begin: `"`, End: `"`},
		prefix:      "@",
		inListLimit: InListLimit,
		identity:    IdentityAutoIncrement,
		placeholder: PlaceholderQuestion,
	}
	PostgreSQL = &Dialect{
		kind:          KindPostgreSQL,
		bracket:       Bracket{Begin: `"`, End: `"`},
		prefix:        ":",
		defaultSchema: "public",
		inListLimit:   InListLimit,
		identity:      IdentitySequence,
		placeholder:   PlaceholderDollar,
		sequenceFmt:   "nextval('%s')",
	}
	Oracle = &Dialect{
		kind:        KindOracle,
		bracket:     Bracket{Begin: `"`, End: `"`},
		prefix:      ":",
		inListLimit: InListLimit,
		identity:    IdentitySequence,
		placeholder: PlaceholderColon,
		sequenceFmt: "%s.nextval",
	}
)

var all = []*Dialect{SQLServer, MySQL, SQLite, PostgreSQL, Oracle}

// All 返回所有支持的方言，顺序固定
func All() []*Dialect {
	out := make([]*Dialect, len(all))
	copy(out, all)
	return out
}

// ByKind 根据数据库类型获取方言
func ByKind(kind Kind) (*Dialect, error) {
	for _, d := range all {
		if d.kind == kind {
			return d, nil
		}
	}
	return nil, &UnsupportedProviderError{Provider: string(kind)}
}

// MustByKind 同 ByKind，失败时 panic
func MustByKind(kind Kind) *Dialect {
	d, err := ByKind(kind)
	if err != nil {
		panic(err)
	}
	return d
}

// UnsupportedProviderError 未注册方言的数据库
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %s", e.Provider)
}
