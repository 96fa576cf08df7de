package dialect

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
	go_ora "github.com/sijms/go-ora/v2"
)

// 驱动名到数据库类型的映射，与 sql.Open 使用的名称一致
var driverNames = map[string]Kind{
	"sqlserver": KindSQLServer,
	"mssql":     KindSQLServer,
	"mysql":     KindMySQL,
	"sqlite3":   KindSQLite,
	"sqlite":    KindSQLite,
	"postgres":  KindPostgreSQL,
	"pgx":       KindPostgreSQL,
	"oracle":    KindOracle,
}

// 驱动实现类型到数据库类型的映射
var driverTypes = map[reflect.Type]Kind{
	reflect.TypeOf((*mssql.Driver)(nil)):         KindSQLServer,
	reflect.TypeOf((*mysql.MySQLDriver)(nil)):    KindMySQL,
	reflect.TypeOf((*sqlite3.SQLiteDriver)(nil)): KindSQLite,
	reflect.TypeOf((*pq.Driver)(nil)):            KindPostgreSQL,
	reflect.TypeOf((*stdlib.Driver)(nil)):        KindPostgreSQL,
	reflect.TypeOf((*go_ora.OracleDriver)(nil)):  KindOracle,
}

// ByDriverName 根据 sql.Open 的驱动名获取方言
func ByDriverName(name string) (*Dialect, error) {
	kind, ok := driverNames[strings.ToLower(name)]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: name}
	}
	return ByKind(kind)
}

// ByDriver 根据驱动实现的类型获取方言
func ByDriver(drv driver.Driver) (*Dialect, error) {
	if drv == nil {
		return nil, &UnsupportedProviderError{Provider: "<nil>"}
	}
	t := reflect.TypeOf(drv)
	kind, ok := driverTypes[t]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: t.String()}
	}
	return ByKind(kind)
}

// FromDB 根据连接池使用的驱动获取方言
func FromDB(db *sql.DB) (*Dialect, error) {
	if db == nil {
		return nil, &UnsupportedProviderError{Provider: "<nil>"}
	}
	return ByDriver(db.Driver())
}
