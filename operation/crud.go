package operation

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/mapping"
	"github.com/hatlonely/declsql/predicate"
	"github.com/hatlonely/declsql/statement"
	"github.com/pkg/errors"
)

// Exec 执行语句，record 不为空时先将其字段合并到参数中，返回影响行数
func (o *Operation) Exec(ctx context.Context, q *statement.Query, record any) (int64, error) {
	return o.exec(ctx, "exec", q, record)
}

func (o *Operation) exec(ctx context.Context, name string, q *statement.Query, record any) (int64, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	c := &call{operation: name, statement: q.Statement}
	err := o.observer.observe(ctx, c, func(ctx context.Context) error {
		text, args, err := o.bind(q, record)
		if err != nil {
			return err
		}
		res, err := o.conn.ExecContext(ctx, text, args...)
		if err != nil {
			return errors.Wrap(err, "exec")
		}
		c.rows, err = res.RowsAffected()
		return errors.Wrap(err, "rows affected")
	})
	return c.rows, err
}

// bind 合并记录并改写为驱动占位符
func (o *Operation) bind(q *statement.Query, record any) (string, []any, error) {
	params := q.Parameters
	if record != nil {
		params = params.Clone()
		if err := params.Merge(record); err != nil {
			return "", nil, errors.WithMessage(err, "merge record")
		}
	}
	return bindQuery(o.Dialect(), q.Statement, params)
}

// Query 执行查询并按成员名将结果列写入 T
func Query[T any](ctx context.Context, o *Operation, q *statement.Query) ([]*T, error) {
	return query[T](ctx, o, "query", q)
}

func query[T any](ctx context.Context, o *Operation, name string, q *statement.Query) ([]*T, error) {
	table, err := o.builder.Table(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var result []*T
	c := &call{operation: name, statement: q.Statement}
	err = o.observer.observe(ctx, c, func(ctx context.Context) error {
		text, args, err := o.bind(q, nil)
		if err != nil {
			return err
		}
		rows, err := o.conn.QueryContext(ctx, text, args...)
		if err != nil {
			return errors.Wrap(err, "query")
		}
		defer rows.Close()

		result, err = scanRows[T](rows, table)
		c.rows = int64(len(result))
		return err
	})
	return result, err
}

// Count where 为空时统计全部记录
func Count[T any](ctx context.Context, o *Operation, where predicate.Node) (uint64, error) {
	q, err := statement.Count[T](o.builder).Where(where).Build()
	if err != nil {
		return 0, err
	}

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var count int64
	c := &call{operation: "count", statement: q.Statement}
	err = o.observer.observe(ctx, c, func(ctx context.Context) error {
		text, args, err := o.bind(q, nil)
		if err != nil {
			return err
		}
		if err := o.conn.QueryRowContext(ctx, text, args...).Scan(&count); err != nil {
			return errors.Wrap(err, "scan count")
		}
		c.rows = 1
		return nil
	})
	return uint64(count), err
}

// Select members 为空时查询所有列
func Select[T any](ctx context.Context, o *Operation, where predicate.Node, members ...string) ([]*T, error) {
	q, err := statement.Select[T](o.builder, members...).Where(where).Build()
	if err != nil {
		return nil, err
	}
	return query[T](ctx, o, "select", q)
}

func Insert[T any](ctx context.Context, o *Operation, record *T, opts ...statement.InsertOption) (int64, error) {
	q, err := statement.Insert[T](o.builder, opts...).Build()
	if err != nil {
		return 0, err
	}
	return o.exec(ctx, "insert", q, record)
}

// InsertMulti 逐条插入，相同的语句只 prepare 一次
func InsertMulti[T any](ctx context.Context, o *Operation, records []*T, opts ...statement.InsertOption) (int64, error) {
	q, err := statement.Insert[T](o.builder, opts...).Build()
	if err != nil {
		return 0, err
	}
	return o.execMulti(ctx, "insertMulti", q, anySlice(records))
}

func InsertIgnore[T any](ctx context.Context, o *Operation, record *T, opts ...statement.InsertOption) (int64, error) {
	keyword, err := ignoreKeyword(o.Dialect(), "insertIgnore")
	if err != nil {
		return 0, err
	}
	q, err := statement.Insert[T](o.builder, append(opts, statement.WithKeyword(keyword))...).Build()
	if err != nil {
		return 0, err
	}
	return o.exec(ctx, "insertIgnore", q, record)
}

func InsertIgnoreMulti[T any](ctx context.Context, o *Operation, records []*T, opts ...statement.InsertOption) (int64, error) {
	keyword, err := ignoreKeyword(o.Dialect(), "insertIgnoreMulti")
	if err != nil {
		return 0, err
	}
	q, err := statement.Insert[T](o.builder, append(opts, statement.WithKeyword(keyword))...).Build()
	if err != nil {
		return 0, err
	}
	return o.execMulti(ctx, "insertIgnoreMulti", q, anySlice(records))
}

func ignoreKeyword(d *dialect.Dialect, operation string) (string, error) {
	switch d.Kind() {
	case dialect.KindMySQL:
		return "insert ignore into", nil
	case dialect.KindSQLite:
		return "insert or ignore into", nil
	}
	return "", &UnsupportedOperationError{Operation: operation, Dialect: d.Kind()}
}

func anySlice[T any](records []*T) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func (o *Operation) execMulti(ctx context.Context, name string, q *statement.Query, records []any) (int64, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	c := &call{operation: name, statement: q.Statement, batch: len(records)}
	err := o.observer.observe(ctx, c, func(ctx context.Context) error {
		stmts := map[string]*sql.Stmt{}
		defer func() {
			for _, stmt := range stmts {
				_ = stmt.Close()
			}
		}()

		for i, record := range records {
			text, args, err := o.bind(q, record)
			if err != nil {
				return errors.WithMessagef(err, "record %d", i)
			}
			stmt, ok := stmts[text]
			if !ok {
				if stmt, err = o.conn.PrepareContext(ctx, text); err != nil {
					return errors.Wrap(err, "prepare")
				}
				stmts[text] = stmt
			}
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return errors.Wrapf(err, "exec record %d", i)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "rows affected")
			}
			c.rows += n
		}
		return nil
	})
	return c.rows, err
}

// InsertAndGetID 插入一条记录并返回自增主键，主键同时写回 record
func InsertAndGetID[T any](ctx context.Context, o *Operation, record *T, opts ...statement.InsertOption) (int64, error) {
	table, err := o.builder.Table(reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	q, err := statement.NewInsertBuilder(table, opts...).Build()
	if err != nil {
		return 0, err
	}

	d := o.Dialect()
	identity := identityColumn(table)

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var id int64
	c := &call{operation: "insertAndGetID", statement: q.Statement}
	err = o.observer.observe(ctx, c, func(ctx context.Context) error {
		switch d.Kind() {
		case dialect.KindMySQL, dialect.KindSQLite:
			text, args, err := o.bind(q, record)
			if err != nil {
				return err
			}
			res, err := o.conn.ExecContext(ctx, text, args...)
			if err != nil {
				return errors.Wrap(err, "exec")
			}
			if id, err = res.LastInsertId(); err != nil {
				return errors.Wrap(err, "last insert id")
			}
		case dialect.KindSQLServer, dialect.KindPostgreSQL:
			if identity == nil {
				return errors.Errorf("%s has no auto increment column", table.Name())
			}
			withID := &statement.Query{Parameters: q.Parameters}
			if d.Kind() == dialect.KindSQLServer {
				withID.Statement = q.Statement + ";\nselect cast(scope_identity() as bigint) as Id;"
			} else {
				withID.Statement = q.Statement + "\nreturning " + d.Quote(identity.ColumnName())
			}
			c.statement = withID.Statement
			text, args, err := o.bind(withID, record)
			if err != nil {
				return err
			}
			if err := o.conn.QueryRowContext(ctx, text, args...).Scan(&id); err != nil {
				return errors.Wrap(err, "scan id")
			}
		default:
			return &UnsupportedOperationError{Operation: "insertAndGetID", Dialect: d.Kind()}
		}
		c.rows = 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	if identity != nil && record != nil {
		field := reflect.ValueOf(record).Elem().FieldByName(identity.MemberName())
		if field.IsValid() && field.CanSet() {
			if err := setFieldValue(field, id); err != nil {
				return id, errors.WithMessagef(err, "set %s", identity.MemberName())
			}
		}
	}
	return id, nil
}

func identityColumn(table *mapping.Table) *mapping.Column {
	for _, c := range table.Columns() {
		if c.IsAutoIncrement() {
			return c
		}
	}
	return nil
}

// Update 以 record 的字段值更新满足 where 的记录，where 为空时更新全部记录
func Update[T any](ctx context.Context, o *Operation, record *T, where predicate.Node, opts ...statement.UpdateOption) (int64, error) {
	q, err := statement.Update[T](o.builder, opts...).Where(where).Build()
	if err != nil {
		return 0, err
	}
	return o.exec(ctx, "update", q, record)
}

// Delete where 为空时删除全部记录
func Delete[T any](ctx context.Context, o *Operation, where predicate.Node) (int64, error) {
	q, err := statement.Delete[T](o.builder).Where(where).Build()
	if err != nil {
		return 0, err
	}
	return o.exec(ctx, "delete", q, nil)
}

// Truncate sqlite 没有 truncate，使用 delete from 代替
func Truncate[T any](ctx context.Context, o *Operation) (int64, error) {
	var q *statement.Query
	var err error
	if o.Dialect().Kind() == dialect.KindSQLite {
		q, err = statement.Delete[T](o.builder).Build()
	} else {
		q, err = statement.Truncate[T](o.builder).Build()
	}
	if err != nil {
		return 0, err
	}
	return o.exec(ctx, "truncate", q, nil)
}
