package operation

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/hatlonely/declsql/bind"
	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"
)

var (
	errNotPgx      = errors.New("driver connection is not pgx")
	errPgxBulkInTx = errors.New("bulk insert with pgx must run outside a transaction")
)

func isPgx(conn Conn) bool {
	db, ok := conn.(*sql.DB)
	if !ok {
		return false
	}
	_, ok = db.Driver().(*stdlib.Driver)
	return ok
}

// BulkInsert 使用数据库的批量导入协议写入记录，不包含自增列
// sqlserver 使用 bulk copy，postgres 使用 copy from
// pgx 驱动的 copy from 需要原生连接，不能在 WithTx 中调用
func BulkInsert[T any](ctx context.Context, o *Operation, records []*T) (int64, error) {
	table, err := o.builder.Table(reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	kind := o.Dialect().Kind()
	if kind != dialect.KindSQLServer && kind != dialect.KindPostgreSQL {
		return 0, &UnsupportedOperationError{Operation: "bulkInsert", Dialect: kind}
	}

	columns, rows, err := bulkRows(table, anySlice(records))
	if err != nil {
		return 0, err
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	c := &call{operation: "bulkInsert", statement: "copy " + table.FullName(), batch: len(records)}
	err = o.observer.observe(ctx, c, func(ctx context.Context) error {
		var err error
		if kind == dialect.KindSQLServer {
			c.rows, err = o.copyIn(ctx, mssql.CopyIn(table.FullName(), mssql.BulkOptions{}, columns...), rows)
			return err
		}
		c.rows, err = o.copyFrom(ctx, table, columns, rows)
		if errors.Is(err, errNotPgx) {
			c.rows, err = o.copyIn(ctx, pq.CopyInSchema(table.Schema(), table.Name(), columns...), rows)
		}
		return err
	})
	return c.rows, err
}

// bulkRows 按列顺序取出每条记录的值
func bulkRows(table *mapping.Table, records []any) ([]string, [][]any, error) {
	var columns, members []string
	for _, c := range table.Columns() {
		if c.IsAutoIncrement() {
			continue
		}
		columns = append(columns, c.ColumnName())
		members = append(members, c.MemberName())
	}

	rows := make([][]any, 0, len(records))
	for i, record := range records {
		params := bind.New()
		if err := params.Merge(record); err != nil {
			return nil, nil, errors.WithMessagef(err, "record %d", i)
		}
		row := make([]any, len(members))
		for j, member := range members {
			row[j], _ = params.Get(member)
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// copyIn 在事务中逐行执行 copy 语句，最后一次无参数调用提交缓冲的数据
func (o *Operation) copyIn(ctx context.Context, copyStatement string, rows [][]any) (int64, error) {
	var affected int64
	err := o.WithTx(ctx, func(tx *Operation) error {
		stmt, err := tx.conn.PrepareContext(ctx, copyStatement)
		if err != nil {
			return errors.Wrap(err, "prepare copy")
		}
		defer stmt.Close()

		for i, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return errors.Wrapf(err, "copy row %d", i)
			}
		}
		res, err := stmt.ExecContext(ctx)
		if err != nil {
			return errors.Wrap(err, "flush copy")
		}
		if affected, err = res.RowsAffected(); err != nil || affected <= 0 {
			affected = int64(len(rows))
		}
		return nil
	})
	return affected, err
}

// copyFrom 通过 pgx 原生连接执行 copy from，连接不是 pgx 时返回 errNotPgx
func (o *Operation) copyFrom(ctx context.Context, table *mapping.Table, columns []string, rows [][]any) (int64, error) {
	var conn *sql.Conn
	switch c := o.conn.(type) {
	case *sql.Conn:
		conn = c
	case *sql.DB:
		var err error
		if conn, err = c.Conn(ctx); err != nil {
			return 0, errors.Wrap(err, "acquire connection")
		}
		defer conn.Close()
	case *sql.Tx:
		if o.pgx {
			return 0, errPgxBulkInTx
		}
		return 0, errNotPgx
	default:
		return 0, errNotPgx
	}

	identifier := pgx.Identifier{table.Name()}
	if table.Schema() != "" {
		identifier = pgx.Identifier{table.Schema(), table.Name()}
	}

	var affected int64
	err := conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		n, err := pc.Conn().CopyFrom(ctx, identifier, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return errors.Wrap(err, "copy from")
		}
		affected = n
		return nil
	})
	return affected, err
}
