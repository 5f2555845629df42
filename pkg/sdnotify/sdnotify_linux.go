//go:build linux

// Package sdnotify is a thin wrapper over the systemd notify socket.
// All functions are no-ops when NOTIFY_SOCKET is not set, so the daemon
// behaves the same under systemd and in the foreground.
package sdnotify

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd the daemon finished starting up.
func Ready() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// Stopping tells systemd a shutdown began.
func Stopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// Ping sends one WATCHDOG=1 keepalive.
func Ping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns the recommended ping interval, half of
// WatchdogSec. Zero means no watchdog is configured for this unit.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}
