package trends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"veille/internal/bus"
	"veille/internal/core"
	"veille/internal/logger"
	"veille/internal/persistence"
)

// cooldown is the minimum gap between two events for the same cluster.
const cooldown = 30 * time.Minute

// Thresholds are the anomaly detection settings. Velocity and Acceleration
// trigger detection; the severity cut points grade the result.
type Thresholds struct {
	MinDocCount      int
	Velocity         float64
	Acceleration     float64
	VelocityMedium   float64
	VelocityHigh     float64
	VelocityCritical float64
}

// DefaultThresholds returns the production detection settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDocCount:      3,
		Velocity:         3.0,
		Acceleration:     2.0,
		VelocityMedium:   7.0,
		VelocityHigh:     15.0,
		VelocityCritical: 30.0,
	}
}

// Detector turns fresh trend metrics into events and publishes them.
type Detector struct {
	db       persistence.Database
	bus      *bus.Bus
	defaults Thresholds
	log      *slog.Logger
}

// NewDetector creates a detector publishing on the given bus.
func NewDetector(db persistence.Database, eventBus *bus.Bus, defaults Thresholds) *Detector {
	return &Detector{db: db, bus: eventBus, defaults: defaults, log: logger.With("detector")}
}

// Detect scans the latest metric per cluster from the last hour and emits
// at most one event per cluster per cooldown window. Per-cluster failures
// are logged and skipped. Returns how many events were emitted.
func (d *Detector) Detect(ctx context.Context, now time.Time) (int, error) {
	metrics, err := d.db.Metrics().Latest(ctx, now.Add(-time.Hour))
	if err != nil {
		return 0, fmt.Errorf("failed to load recent metrics: %w", err)
	}
	if len(metrics) == 0 {
		d.log.Info("No recent metrics to analyse")
		return 0, nil
	}

	thresholdCache := make(map[int64]Thresholds)
	emitted := 0
	for i := range metrics {
		metric := &metrics[i]

		// The cooldown check runs before any scoring so a suppressed
		// cluster costs one query, not a detection pass.
		recent, err := d.db.Events().ExistsSince(ctx, metric.ClusterID, now.Add(-cooldown))
		if err != nil {
			d.log.Error("Failed to check event cooldown", "cluster_id", metric.ClusterID, "error", err)
			continue
		}
		if recent {
			d.log.Debug("Cluster in cooldown", "cluster_id", metric.ClusterID)
			continue
		}

		thresholds := d.thresholdsFor(ctx, metric.RunID, thresholdCache)
		anomaly, score, severity := evaluate(metric, thresholds)
		if !anomaly {
			continue
		}

		event := &core.Event{
			RunID:       metric.RunID,
			ClusterID:   metric.ClusterID,
			DetectedAt:  now,
			Score:       score,
			Severity:    severity,
			Label:       fmt.Sprintf("Trending: %.0f articles/h", metric.Velocity),
			WindowStart: metric.TS.Add(-time.Hour),
			WindowEnd:   metric.TS,
		}
		if err := d.db.Events().Create(ctx, event); err != nil {
			d.log.Error("Failed to persist event", "cluster_id", metric.ClusterID, "error", err)
			continue
		}

		message := core.EventMessage{
			EventID:    event.ID,
			ClusterID:  event.ClusterID,
			Severity:   string(event.Severity),
			Label:      event.Label,
			Score:      event.Score,
			DetectedAt: event.DetectedAt.Format(time.RFC3339),
		}
		if err := d.bus.Publish(ctx, bus.EventsChannel, message); err != nil {
			// The event row survives; only the live notification is lost.
			d.log.Error("Failed to publish event", "event_id", event.ID, "error", err)
		} else {
			d.log.Info("Event published", "event_id", event.ID, "cluster_id", event.ClusterID,
				"severity", string(event.Severity), "score", event.Score)
		}
		emitted++
	}

	return emitted, nil
}

// thresholdsFor resolves the thresholds for a run, overlaying run
// parameters on the defaults. Resolution is cached per Detect pass.
func (d *Detector) thresholdsFor(ctx context.Context, runID int64, cache map[int64]Thresholds) Thresholds {
	if thresholds, ok := cache[runID]; ok {
		return thresholds
	}

	thresholds := d.defaults
	run, err := d.db.Runs().Get(ctx, runID)
	switch {
	case err == nil:
		thresholds.Velocity = run.Param("velocity_threshold", thresholds.Velocity)
		thresholds.Acceleration = run.Param("acceleration_threshold", thresholds.Acceleration)
		thresholds.MinDocCount = int(run.Param("min_doc_count", float64(thresholds.MinDocCount)))
	case !errors.Is(err, persistence.ErrNotFound):
		d.log.Warn("Failed to load run parameters, using defaults", "run_id", runID, "error", err)
	}

	cache[runID] = thresholds
	return thresholds
}

// evaluate scores one metric. Small clusters are suppressed outright;
// otherwise an anomaly needs the velocity or the acceleration trigger, and
// severity grades on velocity alone.
func evaluate(metric *core.TrendMetric, thresholds Thresholds) (bool, float64, core.Severity) {
	if metric.DocCount < thresholds.MinDocCount {
		return false, 0, core.SeverityLow
	}

	score := metric.Velocity + 2.0*math.Abs(metric.Acceleration)

	if metric.Velocity < thresholds.Velocity && metric.Acceleration < thresholds.Acceleration {
		return false, score, core.SeverityLow
	}

	severity := core.SeverityLow
	switch {
	case metric.Velocity >= thresholds.VelocityCritical:
		severity = core.SeverityCritical
	case metric.Velocity >= thresholds.VelocityHigh:
		severity = core.SeverityHigh
	case metric.Velocity >= thresholds.VelocityMedium:
		severity = core.SeverityMedium
	}

	return true, score, severity
}
