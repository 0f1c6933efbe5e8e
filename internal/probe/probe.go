// Package probe autodetects the login username for a host by attempting
// unattended ssh authentication with a fixed precedence list of candidates.
//
// Probes shell out to the system ssh binary rather than implementing the SSH
// protocol, so they inherit the user's keys and agent configuration. BatchMode
// disables password and confirmation prompts so a probe can never block on
// user input, and ConnectTimeout bounds unreachable hosts.
package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"tailnym/internal/model"
	"tailnym/internal/util"
)

// Runner executes one probe attempt. It exists so tests can substitute process
// execution; a nil error means the candidate authenticated.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// Prober tries candidate usernames in order against a host.
type Prober struct {
	runner     Runner
	candidates []string
	timeout    time.Duration
}

// New creates a prober that shells out to ssh.
func New(candidates []string, timeout time.Duration) *Prober {
	return NewWithRunner(execRunner{}, candidates, timeout)
}

// NewWithRunner creates a prober with a custom runner, for tests.
func NewWithRunner(r Runner, candidates []string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = util.DefaultProbeTimeout
	}
	return &Prober{runner: r, candidates: candidates, timeout: timeout}
}

// Default returns the first candidate, used when every probe fails.
func (p *Prober) Default() string {
	if len(p.candidates) == 0 {
		return ""
	}
	return p.candidates[0]
}

// DetectUsername returns the first candidate that authenticates against
// ip:port. If no candidate succeeds it returns the first candidate and
// model.ErrProbeExhausted; callers treat that as a notice, not a failure.
func (p *Prober) DetectUsername(ctx context.Context, ip string, port int) (string, error) {
	if len(p.candidates) == 0 {
		return "", fmt.Errorf("no candidate usernames configured")
	}
	for _, user := range p.candidates {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout+util.ProbeKillGrace)
		err := p.runner.Run(attemptCtx, "ssh", p.Args(user, ip, port)...)
		cancel()
		if err == nil {
			return user, nil
		}
		if ctx.Err() != nil {
			return p.Default(), ctx.Err()
		}
		slog.Debug("probe attempt failed", "user", user, "ip", ip, "port", port, "error", err)
	}
	return p.Default(), fmt.Errorf("%w for %s:%d", model.ErrProbeExhausted, ip, port)
}

// Args composes the ssh argv for one probe attempt. Exposed for argument
// composition tests, mirroring how the session argv builders are tested.
func (p *Prober) Args(user, ip string, port int) []string {
	// ssh treats ConnectTimeout=0 as "use the system default", not fail-fast,
	// so a sub-second timeout still renders as 1.
	secs := int(p.timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", fmt.Sprintf("ConnectTimeout=%d", secs),
		"-p", strconv.Itoa(port),
		fmt.Sprintf("%s@%s", user, ip),
		"exit",
	}
}
