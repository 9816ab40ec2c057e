package scan

import (
	"context"
	"time"

	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/store"
)

type monitor struct {
	cancel          context.CancelFunc
	intervalMinutes int
}

// StartMonitoring runs a whole-site scan now and then every intervalMinutes.
// Starting while monitoring is active logs a warning and does nothing.
func (c *Coordinator) StartMonitoring(ctx context.Context, intervalMinutes int) error {
	if intervalMinutes < 1 {
		return ErrInvalidInterval
	}

	c.monMu.Lock()
	defer c.monMu.Unlock()
	if c.mon != nil {
		c.logger.Warn("monitoring already active", "interval_minutes", c.mon.intervalMinutes)
		return nil
	}

	enabled := true
	if _, err := c.store.UpdateSettings(ctx, store.SettingsPatch{
		MonitoringEnabled:         &enabled,
		MonitoringIntervalMinutes: &intervalMinutes,
	}); err != nil {
		return err
	}

	// Scans use a context that stopping does not cancel, so a scan already
	// running when monitoring stops completes normally.
	scanCtx := context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancel(scanCtx)
	c.mon = &monitor{cancel: cancel, intervalMinutes: intervalMinutes}
	interval := time.Duration(intervalMinutes) * c.unit

	c.emit(events.MonitoringStarted, events.MonitoringData{IntervalMinutes: intervalMinutes})
	c.logger.Info("monitoring started", "interval_minutes", intervalMinutes)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.monitorScan(scanCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				c.monitorScan(scanCtx)
			}
		}
	}()

	return nil
}

// StopMonitoring cancels future scheduled scans. It does nothing when
// monitoring is not active.
func (c *Coordinator) StopMonitoring(ctx context.Context) error {
	c.monMu.Lock()
	defer c.monMu.Unlock()
	if c.mon == nil {
		return nil
	}
	c.mon.cancel()
	c.mon = nil

	disabled := false
	if _, err := c.store.UpdateSettings(ctx, store.SettingsPatch{MonitoringEnabled: &disabled}); err != nil {
		return err
	}
	c.emit(events.MonitoringStopped, events.MonitoringData{})
	c.logger.Info("monitoring stopped")
	return nil
}

// Monitoring reports whether recurring scans are scheduled and at which
// interval.
func (c *Coordinator) Monitoring() (bool, int) {
	c.monMu.Lock()
	defer c.monMu.Unlock()
	if c.mon == nil {
		return false, 0
	}
	return true, c.mon.intervalMinutes
}

func (c *Coordinator) monitorScan(ctx context.Context) {
	if err := c.Scan(ctx); err != nil {
		c.logger.Error("scheduled scan failed", "error", err)
	}
}
