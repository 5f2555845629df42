package core

import (
	"tickd/pkg/logx"
	"tickd/pkg/sdnotify"
)

// watchdogSub is a periodic timer subscriber that pings the systemd
// watchdog. Registering it on the shared engine means a wedged worker
// loop stops the pings and systemd restarts the unit.
type watchdogSub struct{}

func (w *watchdogSub) TimerName() string { return "systemd-watchdog" }

func (w *watchdogSub) Notify(parameter any) { sdnotify.Ping() }

// applyWatchdog registers or removes the watchdog subscriber to match
// the config. A no-op when systemd did not configure WatchdogSec.
func (a *App) applyWatchdog(enabled bool) {
	interval := sdnotify.WatchdogInterval()

	switch {
	case enabled && interval > 0 && a.watchdog == nil:
		sub := &watchdogSub{}
		if err := a.tm.Add(sub, interval, nil, false); err != nil {
			a.log.Warn("watchdog not registered", logx.Err(err))
			return
		}
		a.watchdog = sub
		a.log.Info("systemd watchdog pings enabled", logx.Duration("interval", interval))
	case enabled && interval == 0 && a.watchdog == nil:
		a.log.Debug("watchdog enabled in config but WatchdogSec is not set; skipping")
	case !enabled && a.watchdog != nil:
		a.tm.Remove(a.watchdog, nil, true)
		a.watchdog = nil
		a.log.Info("systemd watchdog pings disabled")
	}
}
