package operation

import (
	"context"
	"time"

	"github.com/hatlonely/declsql/dialect"
	"github.com/hatlonely/declsql/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// metrics 执行器的 prometheus 指标
type metrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	rowsAffected      *prometheus.CounterVec
	batchSize         *prometheus.HistogramVec
}

func newMetrics(name string, r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of sql operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of sql operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active sql operations",
			},
			[]string{"operation"},
		),
		rowsAffected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_rows_affected_total",
				Help: "Total number of rows affected or returned",
			},
			[]string{"operation"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_batch_size",
				Help:    "Number of records in batch operations",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		),
	}

	var err error
	if m.operationCounter, err = register(r, m.operationCounter); err != nil {
		return nil, err
	}
	if m.operationDuration, err = register(r, m.operationDuration); err != nil {
		return nil, err
	}
	if m.activeOperations, err = register(r, m.activeOperations); err != nil {
		return nil, err
	}
	if m.rowsAffected, err = register(r, m.rowsAffected); err != nil {
		return nil, err
	}
	if m.batchSize, err = register(r, m.batchSize); err != nil {
		return nil, err
	}
	return m, nil
}

// register 同名指标已注册时复用已有的 collector
func register[C prometheus.Collector](r prometheus.Registerer, c C) (C, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register metrics")
	}
	return c, nil
}

type observer struct {
	name    string
	dialect dialect.Kind
	logger  log.Logger
	metrics *metrics
	tracer  trace.Tracer
}

func newObserver(options *Options, d *dialect.Dialect, s *settings) (*observer, error) {
	obs := &observer{name: options.Name, dialect: d.Kind()}

	if options.EnableLogging {
		logger := s.logger
		if logger == nil && options.Logger != nil {
			l, err := log.NewWithOptions(options.Logger)
			if err != nil {
				return nil, errors.WithMessage(err, "create logger")
			}
			logger = l
		}
		if logger == nil {
			logger = log.Default()
		}
		obs.logger = logger.WithGroup("operation")
	}

	if options.EnableMetrics {
		m, err := newMetrics(options.Name, s.registerer)
		if err != nil {
			return nil, err
		}
		obs.metrics = m
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer("declsql." + options.Name)
	}

	return obs, nil
}

// call 一次调用的观测上下文
type call struct {
	operation string
	statement string
	batch     int
	rows      int64
}

// observe 包装一次调用，记录 span、指标和日志
func (obs *observer) observe(ctx context.Context, c *call, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String("component", obs.name),
			attribute.String("operation", c.operation),
			attribute.String("db.system", string(obs.dialect)),
		}
		if c.batch > 0 {
			attrs = append(attrs, attribute.Int("batch_size", c.batch))
		}
		ctx, span = obs.tracer.Start(ctx, "declsql."+c.operation, trace.WithAttributes(attrs...))
		defer span.End()
	}

	if obs.metrics != nil {
		if c.batch > 0 {
			obs.metrics.batchSize.WithLabelValues(c.operation).Observe(float64(c.batch))
		}
		obs.metrics.activeOperations.WithLabelValues(c.operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(c.operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(
			attribute.String("db.statement", c.statement),
			attribute.Int64("duration_ms", duration.Milliseconds()),
			attribute.Int64("rows", c.rows),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(c.operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(c.operation).Observe(duration.Seconds())
		if err == nil && c.rows > 0 {
			obs.metrics.rowsAffected.WithLabelValues(c.operation).Add(float64(c.rows))
		}
	}

	if obs.logger != nil {
		if err != nil {
			obs.logger.ErrorContext(ctx, "sql operation failed",
				"component", obs.name,
				"operation", c.operation,
				"statement", c.statement,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "sql operation completed",
				"component", obs.name,
				"operation", c.operation,
				"statement", c.statement,
				"rows", c.rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}
