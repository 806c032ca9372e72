package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuestMetrics 任务引擎指标；nil 接收者上的方法都是 no-op
type QuestMetrics struct {
	ClaimsTotal         metric.Int64Counter
	SignalFailuresTotal metric.Int64Counter
	ProgressWritesTotal metric.Int64Counter
	EventsPublished     metric.Int64Counter
	EventsApplied       metric.Int64Counter
	EventQuestFailures  metric.Int64Counter
	CheckInsTotal       metric.Int64Counter
	ListDuration        metric.Float64Histogram
}

// NewQuestMetrics 注册任务引擎指标
func NewQuestMetrics(meter metric.Meter) (*QuestMetrics, error) {
	var (
		m   QuestMetrics
		err error
	)

	if m.ClaimsTotal, err = meter.Int64Counter(
		"quest.claims.total",
		metric.WithDescription("Quest reward claims by result"),
		metric.WithUnit("{claim}"),
	); err != nil {
		return nil, err
	}

	if m.SignalFailuresTotal, err = meter.Int64Counter(
		"quest.signal.failures.total",
		metric.WithDescription("Derived signal reads that degraded to zero"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, err
	}

	if m.ProgressWritesTotal, err = meter.Int64Counter(
		"quest.progress.writes.total",
		metric.WithDescription("Quest progress rows written"),
		metric.WithUnit("{write}"),
	); err != nil {
		return nil, err
	}

	if m.EventsPublished, err = meter.Int64Counter(
		"quest.events.published.total",
		metric.WithDescription("Quest progress events handed to the broker"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}

	if m.EventsApplied, err = meter.Int64Counter(
		"quest.events.applied.total",
		metric.WithDescription("Quest progress events applied by the worker"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, err
	}

	if m.EventQuestFailures, err = meter.Int64Counter(
		"quest.events.quest_failures.total",
		metric.WithDescription("Per-quest failures while applying a progress event"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, err
	}

	if m.CheckInsTotal, err = meter.Int64Counter(
		"reward.checkins.total",
		metric.WithDescription("Daily check-ins by result"),
		metric.WithUnit("{checkin}"),
	); err != nil {
		return nil, err
	}

	if m.ListDuration, err = meter.Float64Histogram(
		"quest.list.duration",
		metric.WithDescription("Time spent listing quests with progress"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *QuestMetrics) RecordClaim(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *QuestMetrics) RecordSignalFailure(ctx context.Context, signal string) {
	if m == nil {
		return
	}
	m.SignalFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", signal)))
}

func (m *QuestMetrics) RecordProgressWrite(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.ProgressWritesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *QuestMetrics) RecordEventPublished(ctx context.Context, trigger, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	))
}

func (m *QuestMetrics) RecordEventApplied(ctx context.Context, trigger string, updated int) {
	if m == nil {
		return
	}
	m.EventsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("updated", updated > 0),
	))
}

func (m *QuestMetrics) RecordEventQuestFailure(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.EventQuestFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

func (m *QuestMetrics) RecordCheckIn(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.CheckInsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *QuestMetrics) RecordListDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.ListDuration.Record(ctx, seconds)
}
