// Package mesh reads Tailscale peer snapshots, either from the status command
// or from a saved JSON file.
package mesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"tailnym/internal/model"
)

// ServerTag marks a peer as eligible for auto-registration.
const ServerTag = "tag:server"

// Peer is the subset of a tailscale status peer record this tool consumes.
type Peer struct {
	DNSName      string   `json:"DNSName"`
	TailscaleIPs []string `json:"TailscaleIPs"`
	Tags         []string `json:"Tags"`
}

// Snapshot is the peer map from `tailscale status --json`, keyed by peer id.
type Snapshot struct {
	Peer map[string]Peer `json:"Peer"`
}

// Candidate derives the registration pseudonym and primary address from the
// peer record: the first label of its DNS name and the first tailnet IP.
// ok is false when either is missing.
func (p Peer) Candidate() (pseudonym, ip string, ok bool) {
	name := strings.TrimSuffix(strings.TrimSpace(p.DNSName), ".")
	if name == "" || len(p.TailscaleIPs) == 0 {
		return "", "", false
	}
	pseudonym = strings.SplitN(name, ".", 2)[0]
	ip = strings.TrimSpace(p.TailscaleIPs[0])
	if pseudonym == "" || ip == "" {
		return "", "", false
	}
	return pseudonym, ip, true
}

// IsServer reports whether the peer carries the server tag.
func (p Peer) IsServer() bool {
	for _, tag := range p.Tags {
		if tag == ServerTag {
			return true
		}
	}
	return false
}

// FromFile reads a snapshot from a saved status JSON file.
func FromFile(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, &model.SourceError{Source: path, Err: err}
	}
	return parse(b, path)
}

// FromCommand obtains a snapshot by invoking the status command (by default
// `tailscale status --json`).
func FromCommand(ctx context.Context, argv []string) (Snapshot, error) {
	if len(argv) == 0 {
		return Snapshot{}, &model.SourceError{Source: "status command", Err: fmt.Errorf("empty command")}
	}
	name := strings.Join(argv, " ")
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return Snapshot{}, &model.SourceError{Source: name, Err: err}
	}
	return parse(out.Bytes(), name)
}

func parse(b []byte, source string) (Snapshot, error) {
	var sn Snapshot
	if err := json.Unmarshal(b, &sn); err != nil {
		return Snapshot{}, &model.SourceError{Source: source, Err: err}
	}
	return sn, nil
}
