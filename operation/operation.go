// Package operation 在 database/sql 上执行 statement 生成的语句
package operation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hatlonely/declsql/config"
	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/log"
	"github.com/hatlonely/declsql/mapping"
	"github.com/hatlonely/declsql/statement"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Options 执行器配置
type Options struct {
	// 单次调用超时，0 表示不设置
	Timeout time.Duration `cfg:"timeout" def:"30s"`

	// 组件名称，作为指标前缀、日志 component 字段和 span 属性
	Name string `cfg:"name" def:"declsql" validate:"required"`

	EnableMetrics bool `cfg:"enableMetrics"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`

	// Logger 为空时使用 log.Default()
	Logger *log.Options `cfg:"logger"`
}

// Conn *sql.DB、*sql.Tx、*sql.Conn 都满足该接口
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Operation 绑定连接、方言和表描述缓存
type Operation struct {
	conn     Conn
	builder  *statement.QueryBuilder
	timeout  time.Duration
	observer *observer

	// 连接池使用 pgx 驱动，WithTx 派生的执行器沿用该值
	pgx bool
}

type settings struct {
	cache      *mapping.Cache
	logger     log.Logger
	registerer prometheus.Registerer
}

type Option func(*settings)

// WithCache 使用指定的表描述缓存，默认 mapping.Default()
func WithCache(cache *mapping.Cache) Option {
	return func(s *settings) { s.cache = cache }
}

// WithLogger 直接指定日志器，优先于 Options.Logger
func WithLogger(logger log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithRegisterer 指标注册到指定的 Registerer，默认 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = r }
}

// New 创建执行器，options 为空时使用默认配置
func New(conn Conn, d *dialect.Dialect, options *Options, opts ...Option) (*Operation, error) {
	if conn == nil {
		return nil, errors.New("conn is nil")
	}
	if d == nil {
		return nil, errors.New("dialect is nil")
	}
	if options == nil {
		options = &Options{}
	}
	if err := config.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set default options")
	}
	if err := config.Validate(options); err != nil {
		return nil, err
	}

	s := &settings{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(s)
	}

	obs, err := newObserver(options, d, s)
	if err != nil {
		return nil, err
	}

	return &Operation{
		conn:     conn,
		builder:  statement.NewQueryBuilder(d, s.cache),
		timeout:  options.Timeout,
		observer: obs,
		pgx:      isPgx(conn),
	}, nil
}

// FromDB 根据连接池的驱动推断方言
func FromDB(db *sql.DB, options *Options, opts ...Option) (*Operation, error) {
	d, err := dialect.FromDB(db)
	if err != nil {
		return nil, err
	}
	return New(db, d, options, opts...)
}

func (o *Operation) Dialect() *dialect.Dialect { return o.builder.Dialect() }

func (o *Operation) Builder() *statement.QueryBuilder { return o.builder }

// WithTx 在事务中执行 fn，fn 返回错误或 panic 时回滚
// 连接本身已经是事务时直接在当前事务中执行
func (o *Operation) WithTx(ctx context.Context, fn func(tx *Operation) error) (err error) {
	if _, ok := o.conn.(*sql.Tx); ok {
		return fn(o)
	}
	beginner, ok := o.conn.(txBeginner)
	if !ok {
		return errors.Errorf("%T does not support transactions", o.conn)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	child := *o
	child.conn = tx
	if err := fn(&child); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.WithMessagef(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

func (o *Operation) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.timeout)
}

// UnsupportedOperationError 当前方言不支持的操作
type UnsupportedOperationError struct {
	Operation string
	Dialect   dialect.Kind
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s is not supported by %s", e.Operation, e.Dialect)
}
