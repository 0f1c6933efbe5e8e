// Package sshclient launches interactive SSH sessions via the system ssh
// binary.
//
// This package does not implement the SSH protocol. Shelling out to ssh means
// sessions inherit the user's keys, agent, and ~/.ssh/config without
// reimplementing any of that. All arguments are passed via exec.Command's
// argv (never a shell), so pseudonyms or session names containing shell
// metacharacters cannot inject commands.
package sshclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/creack/pty"

	"tailnym/internal/model"
)

// Client creates and launches SSH processes. It is stateless and safe for
// concurrent use.
type Client struct{}

// New creates a new SSH client.
func New() *Client { return &Client{} }

// EnsureSSHBinary checks that the "ssh" binary is available on the system
// PATH, so callers can fail with a clear message before any probe or session
// work starts.
func EnsureSSHBinary() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return fmt.Errorf("ssh binary not found in PATH")
	}
	return nil
}

// ConnectArgs composes the ssh argv for an interactive session to the entry.
// When tmuxSession is non-empty the remote command attaches to (or creates)
// that tmux session; -t forces a TTY so tmux can take over the terminal.
func (c *Client) ConnectArgs(e model.Entry, tmuxSession string) []string {
	args := []string{"-p", strconv.Itoa(e.Port), e.Target()}
	if tmuxSession != "" {
		args = append([]string{"-t"}, args...)
		args = append(args, "tmux", "new-session", "-A", "-s", tmuxSession)
	}
	return args
}

// RunInteractive starts an interactive SSH session to the entry in a
// pseudo-terminal, wiring the user's stdin and stdout to it, and blocks until
// the session ends. If the context is cancelled while the session is active,
// the ssh process is killed rather than left orphaned.
func (c *Client) RunInteractive(ctx context.Context, e model.Entry, tmuxSession string) error {
	cmd := exec.Command("ssh", c.ConnectArgs(e, tmuxSession)...)

	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Forward keystrokes into the PTY master. io.Copy blocks until the PTY
	// closes, so this runs in its own goroutine.
	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()

	// Forward session output to the terminal until the process exits.
	_, _ = io.Copy(os.Stdout, f)

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
	}
	return cmd.Wait()
}
