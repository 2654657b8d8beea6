//go:build linux

package main

import "github.com/coreos/go-systemd/v22/daemon"

// sd_notify is best-effort: outside systemd the socket is absent and
// SdNotify is a no-op.

func notifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
