// Package systemd integrates with the service manager when the process runs
// as a systemd unit: readiness notification and watchdog keep-alives. Every
// call is a no-op outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func NotifyReady()    { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
func NotifyStopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

// RunWatchdog sends keep-alives at half the configured watchdog interval
// until ctx is done. It returns immediately when no watchdog is configured.
func RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
