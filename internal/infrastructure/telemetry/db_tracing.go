// GORM query tracing for the user store.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls query span generation.
type DBTracingConfig struct {
	Enabled          bool
	SlowQueryThresh  time.Duration // queries at or above this get a slow_query event; default 200ms
	DBSystem         string        // default "postgresql"
	WithoutVariables bool          // strip bind variables from recorded SQL
}

// DBTracingPlugin registers otelgorm plus callbacks that tag query spans
// with row counts, errors and slow query events.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin fills config defaults and returns the plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// RegisterOtelGorm installs the otelgorm plugin and the timing callbacks on
// the given GORM instance. A disabled config registers nothing.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if p.config.WithoutVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerTimingCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("database tracing enabled",
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
		zap.Bool("without_variables", p.config.WithoutVariables),
	)
	return nil
}

// registerTimingCallbacks hooks every GORM operation with a before callback
// that records the start time and an after callback that annotates the span
// otelgorm opened for the query.
func (p *DBTracingPlugin) registerTimingCallbacks(db *gorm.DB) error {
	var firstErr error
	add := func(err error) {
		if firstErr == nil && err != nil {
			firstErr = err
		}
	}

	add(db.Callback().Create().Before("gorm:create").Register("user_trace:before_create", markQueryStart))
	add(db.Callback().Query().Before("gorm:query").Register("user_trace:before_query", markQueryStart))
	add(db.Callback().Update().Before("gorm:update").Register("user_trace:before_update", markQueryStart))
	add(db.Callback().Delete().Before("gorm:delete").Register("user_trace:before_delete", markQueryStart))
	add(db.Callback().Row().Before("gorm:row").Register("user_trace:before_row", markQueryStart))
	add(db.Callback().Raw().Before("gorm:raw").Register("user_trace:before_raw", markQueryStart))

	add(db.Callback().Create().After("gorm:create").Register("user_trace:after_create", p.annotateSpan))
	add(db.Callback().Query().After("gorm:query").Register("user_trace:after_query", p.annotateSpan))
	add(db.Callback().Update().After("gorm:update").Register("user_trace:after_update", p.annotateSpan))
	add(db.Callback().Delete().After("gorm:delete").Register("user_trace:after_delete", p.annotateSpan))
	add(db.Callback().Row().After("gorm:row").Register("user_trace:after_row", p.annotateSpan))
	add(db.Callback().Raw().After("gorm:raw").Register("user_trace:after_raw", p.annotateSpan))

	return firstErr
}

type queryStartKey struct{}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}

	// ErrRecordNotFound is a normal lookup miss, not a query failure.
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed >= p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}
