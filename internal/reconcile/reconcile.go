// Package reconcile registers Tailscale peers into the pseudonym table.
//
// New peers are registered through a bounded worker pool; peers whose
// pseudonym is already in the table go through a sequential path so their
// overwrite confirmation prompts cannot interleave. Per-peer failures are
// isolated and reported, never fatal to the rest of the refresh.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"tailnym/internal/mesh"
	"tailnym/internal/model"
)

// DetectFunc resolves the login username for an address. It may return a
// fallback username together with a non-nil notice error.
type DetectFunc func(ctx context.Context, ip string, port int) (string, error)

// ConfirmFunc asks the operator whether an existing pseudonym may be
// overwritten. It blocks on operator input, which is why confirmable
// registrations run sequentially.
type ConfirmFunc func(pseudonym string, existing, proposed model.Entry) bool

// Reconciler drives one refresh of the pseudonym table from a peer snapshot.
type Reconciler struct {
	detect  DetectFunc
	confirm ConfirmFunc
	workers int
	port    int
}

// Result summarizes one refresh.
type Result struct {
	Added   []string
	Updated []string
	Skipped []string
	Notices []string
}

type candidate struct {
	pseudonym string
	ip        string
}

// New creates a reconciler. workers bounds the pool registering new peers;
// port is assigned to every auto-registered entry.
func New(detect DetectFunc, confirm ConfirmFunc, workers, port int) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{detect: detect, confirm: confirm, workers: workers, port: port}
}

// Refresh classifies the snapshot's server-tagged peers against the table and
// registers them, mutating the table in place. The caller persists the table
// once afterwards. When quiet is set, every peer takes the non-interactive
// path and existing entries are overwritten without confirmation.
//
// Cancellation is not a per-peer failure: once ctx is done no further peers
// are registered and the context error is returned, so the caller can discard
// the partial result instead of persisting it.
func (r *Reconciler) Refresh(ctx context.Context, sn mesh.Snapshot, table model.Table, quiet bool) (Result, error) {
	var res Result

	// Deterministic iteration order for the sequential confirmation path.
	ids := make([]string, 0, len(sn.Peer))
	for id := range sn.Peer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var fresh, known []candidate
	for _, id := range ids {
		peer := sn.Peer[id]
		if !peer.IsServer() {
			continue
		}
		name, ip, ok := peer.Candidate()
		if !ok {
			res.Notices = append(res.Notices, fmt.Sprintf("peer %s skipped: missing DNS name or address", id))
			continue
		}
		if _, exists := table[name]; exists && !quiet {
			known = append(known, candidate{pseudonym: name, ip: ip})
		} else {
			fresh = append(fresh, candidate{pseudonym: name, ip: ip})
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan candidate)
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if ctx.Err() != nil {
					continue
				}
				entry, notice := r.resolve(ctx, c)
				if ctx.Err() != nil {
					continue
				}
				mu.Lock()
				_, existed := table[c.pseudonym]
				table[c.pseudonym] = entry
				if existed {
					res.Updated = append(res.Updated, c.pseudonym)
				} else {
					res.Added = append(res.Added, c.pseudonym)
				}
				if notice != "" {
					res.Notices = append(res.Notices, notice)
				}
				mu.Unlock()
			}
		}()
	}
	for _, c := range fresh {
		jobs <- c
	}
	close(jobs)
	wg.Wait()

	for _, c := range known {
		if ctx.Err() != nil {
			break
		}
		entry, notice := r.resolve(ctx, c)
		if ctx.Err() != nil {
			break
		}
		if notice != "" {
			res.Notices = append(res.Notices, notice)
		}
		existing := table[c.pseudonym]
		if existing == entry {
			res.Skipped = append(res.Skipped, c.pseudonym)
			continue
		}
		if r.confirm != nil && !r.confirm(c.pseudonym, existing, entry) {
			res.Skipped = append(res.Skipped, c.pseudonym)
			continue
		}
		table[c.pseudonym] = entry
		res.Updated = append(res.Updated, c.pseudonym)
	}

	sort.Strings(res.Added)
	sort.Strings(res.Updated)
	sort.Strings(res.Skipped)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reconciler) resolve(ctx context.Context, c candidate) (model.Entry, string) {
	user, err := r.detect(ctx, c.ip, r.port)
	notice := ""
	if err != nil {
		slog.Debug("username detection fell back to default", "pseudonym", c.pseudonym, "ip", c.ip, "error", err)
		notice = fmt.Sprintf("%s: %v, using %q", c.pseudonym, err, user)
	}
	return model.Entry{Username: user, IP: c.ip, Port: r.port}, notice
}
