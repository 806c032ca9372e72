package database

import (
	"errors"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey      = "otel:span"
	startTimeKey = "otel:start_time"
)

// 字面量里的敏感值
var sensitiveLiteral = regexp.MustCompile(`(?i)(password|token|secret)\s*=\s*'[^']*'`)

// OTELPlugin GORM OpenTelemetry 插件，每条语句一个 client span，外加耗时指标
type OTELPlugin struct {
	tracer        trace.Tracer
	queries       metric.Int64Counter
	duration      metric.Float64Histogram
	serviceName   string
	maxSQLLength  int
	enableMetrics bool
}

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName   string
	EnableMetrics bool
	MaxSQLLength  int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig(serviceName string) PluginConfig {
	return PluginConfig{
		ServiceName:   serviceName,
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(cfg PluginConfig) (*OTELPlugin, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "habitquest"
	}
	if cfg.MaxSQLLength <= 0 {
		cfg.MaxSQLLength = 500
	}

	p := &OTELPlugin{
		tracer:        otel.Tracer(cfg.ServiceName + ".gorm"),
		serviceName:   cfg.ServiceName,
		maxSQLLength:  cfg.MaxSQLLength,
		enableMetrics: cfg.EnableMetrics,
	}

	if cfg.EnableMetrics {
		meter := otel.Meter(cfg.ServiceName + ".gorm")
		var err error
		if p.queries, err = meter.Int64Counter(
			"db.queries.total",
			metric.WithDescription("Total number of database queries"),
			metric.WithUnit("{query}"),
		); err != nil {
			return nil, err
		}
		if p.duration, err = meter.Float64Histogram(
			"db.query.duration",
			metric.WithDescription("Database query duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
		); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		op       string
		register func(name string, before, after func(*gorm.DB)) error
	}{
		{"query", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register(n+":after", a)
		}},
		{"create", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register(n+":after", a)
		}},
		{"update", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register(n+":after", a)
		}},
		{"delete", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register(n+":after", a)
		}},
		{"row", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register(n+":after", a)
		}},
		{"raw", func(n string, b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register(n+":before", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register(n+":after", a)
		}},
	}

	for _, h := range hooks {
		if err := h.register("otel:"+h.op, p.before("db."+h.op), p.after("db."+h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				attribute.String("service.name", p.serviceName),
			),
		)
		db.InstanceSet(spanKey, span)
		db.InstanceSet(startTimeKey, time.Now())
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if table := db.Statement.Table; table != "" {
			span.SetAttributes(attribute.String("db.sql.table", table))
		}
		span.SetAttributes(
			semconv.DBStatement(p.sanitize(db.Statement.SQL.String())),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		status := "success"
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			status = "not_found"
			span.SetStatus(codes.Ok, "record not found")
		default:
			status = "error"
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}

		if !p.enableMetrics {
			return
		}
		start, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		startTime, ok := start.(time.Time)
		if !ok {
			return
		}

		attrs := metric.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.status", status),
		)
		p.queries.Add(db.Statement.Context, 1, attrs)
		p.duration.Record(db.Statement.Context, time.Since(startTime).Seconds(), attrs)
	}
}

// sanitize 截断并隐藏敏感字面量；参数值走占位符，本来就不在 SQL 里
func (p *OTELPlugin) sanitize(sql string) string {
	if len(sql) > p.maxSQLLength {
		sql = sql[:p.maxSQLLength] + "..."
	}
	return sensitiveLiteral.ReplaceAllString(sql, "$1='***'")
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, serviceName string) error {
	plugin, err := NewOTELPlugin(DefaultPluginConfig(serviceName))
	if err != nil {
		return err
	}
	return db.Use(plugin)
}
