package util

import "time"

const (
	// DefaultProbeTimeout bounds one unattended ssh authentication probe.
	// Unreachable hosts must fail fast rather than hang a refresh, so the
	// value is passed both as ssh's ConnectTimeout and as the subprocess
	// context deadline (with a small grace period for process startup).
	// Used by: internal/appconfig (default), internal/probe.
	DefaultProbeTimeout = 3 * time.Second

	// ProbeKillGrace is added on top of the ConnectTimeout before the probe
	// subprocess itself is killed, covering ssh startup and teardown time.
	// Used by: internal/probe.
	ProbeKillGrace = 2 * time.Second

	// MaxRefreshWorkers caps the worker pool that registers new peers during
	// a refresh. Each worker holds at most one outstanding ssh probe, so a
	// small cap keeps a large tailnet from spawning dozens of ssh processes.
	// Used by: internal/appconfig (normalization), internal/reconcile.
	MaxRefreshWorkers = 8
)
