package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the discovery audit log on an interval and posts alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker wires a collector and alerter to the monitoring config.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// CheckResult is the outcome of one evaluation of the audit window.
type CheckResult struct {
	Snapshot  *MetricsSnapshot
	Triggered []AlertType
	Sent      int
}

// Run checks once at start and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: audit checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	c.check(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: audit checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check reads the run audit window. A window without discovery runs has no
// rates to judge and is not evaluated.
func (c *Checker) check(ctx context.Context, log *zap.Logger) CheckResult {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: read run audit log", zap.Error(err))
		return CheckResult{}
	}
	res := CheckResult{Snapshot: snap}
	if snap.RunsTotal == 0 {
		log.Debug("monitoring: no discovery runs in window", zap.Int("lookback_hours", snap.LookbackHours))
		return res
	}

	alerts := c.alerter.Evaluate(snap)
	for _, a := range alerts {
		res.Triggered = append(res.Triggered, a.Type)
	}
	if len(alerts) > 0 {
		res.Sent = c.alerter.SendAlerts(ctx, alerts)
	}

	log.Info("monitoring: audit window checked",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("runs_failed", snap.RunsFailed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Float64("budget_exceeded_rate", snap.BudgetExceededRate),
		zap.Float64("cost_usd", snap.CostUSD),
		zap.Int("stores_added", snap.StoresAdded),
		zap.Any("alerts", res.Triggered),
		zap.Int("alerts_sent", res.Sent),
	)
	return res
}
