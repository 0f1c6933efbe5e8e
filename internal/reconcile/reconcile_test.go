package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"tailnym/internal/mesh"
	"tailnym/internal/model"
)

func staticDetect(user string) DetectFunc {
	return func(ctx context.Context, ip string, port int) (string, error) {
		return user, nil
	}
}

func serverPeer(name, ip string) mesh.Peer {
	return mesh.Peer{
		DNSName:      name + ".tailnet.ts.net.",
		TailscaleIPs: []string{ip},
		Tags:         []string{"tag:server"},
	}
}

func TestRefreshRegistersAllNewPeersConcurrently(t *testing.T) {
	const n = 20
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{}}
	for i := 0; i < n; i++ {
		sn.Peer[fmt.Sprintf("nodekey:%02d", i)] = serverPeer(fmt.Sprintf("box%02d", i), fmt.Sprintf("100.1.1.%d", i+1))
	}
	table := model.Table{}
	r := New(staticDetect("ubuntu"), nil, 4, 22)
	res, err := r.Refresh(context.Background(), sn, table, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(table) != n {
		t.Fatalf("expected %d entries, got %d", n, len(table))
	}
	if len(res.Added) != n {
		t.Fatalf("expected %d added, got %d", n, len(res.Added))
	}
	if got := table["box00"]; got != (model.Entry{Username: "ubuntu", IP: "100.1.1.1", Port: 22}) {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestRefreshSkipsNonServerAndIncompletePeers(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.1"),
		"nodekey:2": {DNSName: "laptop.tailnet.ts.net.", TailscaleIPs: []string{"100.1.1.2"}},
		"nodekey:3": {DNSName: "", TailscaleIPs: []string{"100.1.1.3"}, Tags: []string{"tag:server"}},
	}}
	table := model.Table{}
	r := New(staticDetect("ubuntu"), nil, 2, 22)
	res, err := r.Refresh(context.Background(), sn, table, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(table) != 1 {
		t.Fatalf("expected only box1 registered, got %+v", table)
	}
	if len(res.Notices) != 1 {
		t.Fatalf("expected one notice for incomplete peer, got %v", res.Notices)
	}
}

func TestRefreshIsIdempotentWhenQuiet(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.1"),
		"nodekey:2": serverPeer("box2", "100.1.1.2"),
	}}
	table := model.Table{}
	r := New(staticDetect("ubuntu"), nil, 2, 22)
	if _, err := r.Refresh(context.Background(), sn, table, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := model.Table{}
	for k, v := range table {
		first[k] = v
	}
	if _, err := r.Refresh(context.Background(), sn, table, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for k, v := range first {
		if table[k] != v {
			t.Fatalf("entry %s changed between runs: %+v vs %+v", k, v, table[k])
		}
	}
}

func TestRefreshExistingPeerPromptsSequentially(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.9"),
	}}
	table := model.Table{"box1": {Username: "old", IP: "100.1.1.1", Port: 22}}

	var prompts atomic.Int32
	confirm := func(pseudonym string, existing, proposed model.Entry) bool {
		prompts.Add(1)
		if pseudonym != "box1" {
			t.Errorf("unexpected pseudonym %s", pseudonym)
		}
		if existing.IP != "100.1.1.1" || proposed.IP != "100.1.1.9" {
			t.Errorf("unexpected prompt values: %+v -> %+v", existing, proposed)
		}
		return false
	}
	r := New(staticDetect("ubuntu"), confirm, 4, 22)
	res, err := r.Refresh(context.Background(), sn, table, false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if prompts.Load() != 1 {
		t.Fatalf("expected one prompt, got %d", prompts.Load())
	}
	if table["box1"].IP != "100.1.1.1" {
		t.Fatalf("declined overwrite must keep old entry, got %+v", table["box1"])
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected one skipped, got %+v", res)
	}
}

func TestRefreshExistingPeerConfirmedOverwrite(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.9"),
	}}
	table := model.Table{"box1": {Username: "old", IP: "100.1.1.1", Port: 22}}
	confirm := func(string, model.Entry, model.Entry) bool { return true }
	r := New(staticDetect("ubuntu"), confirm, 1, 22)
	res, err := r.Refresh(context.Background(), sn, table, false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if table["box1"].IP != "100.1.1.9" || table["box1"].Username != "ubuntu" {
		t.Fatalf("expected overwrite, got %+v", table["box1"])
	}
	if len(res.Updated) != 1 {
		t.Fatalf("expected one updated, got %+v", res)
	}
}

func TestRefreshUnchangedExistingPeerSkipsPrompt(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.1"),
	}}
	table := model.Table{"box1": {Username: "ubuntu", IP: "100.1.1.1", Port: 22}}
	confirm := func(string, model.Entry, model.Entry) bool {
		t.Fatal("prompt must not fire when values are unchanged")
		return false
	}
	r := New(staticDetect("ubuntu"), confirm, 1, 22)
	res, err := r.Refresh(context.Background(), sn, table, false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected one skipped, got %+v", res)
	}
}

func TestRefreshCancelledRegistersNothing(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.1"),
		"nodekey:2": serverPeer("box2", "100.1.1.2"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	detect := func(ctx context.Context, ip string, port int) (string, error) {
		// Mirrors the prober's behavior under a cancelled context: fallback
		// username plus the context error.
		return "ubuntu", ctx.Err()
	}
	table := model.Table{}
	r := New(detect, nil, 4, 22)
	res, err := r.Refresh(ctx, sn, table, true)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("cancelled refresh must not register peers, got %+v", table)
	}
	if len(res.Added) != 0 || len(res.Updated) != 0 {
		t.Fatalf("cancelled refresh must report no registrations, got %+v", res)
	}
}

func TestRefreshCancelledSkipsSequentialPath(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.9"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	confirm := func(string, model.Entry, model.Entry) bool {
		t.Fatal("prompt must not fire after cancellation")
		return false
	}
	table := model.Table{"box1": {Username: "old", IP: "100.1.1.1", Port: 22}}
	r := New(staticDetect("ubuntu"), confirm, 1, 22)
	_, err := r.Refresh(ctx, sn, table, false)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if table["box1"].IP != "100.1.1.1" {
		t.Fatalf("cancelled refresh must keep the old entry, got %+v", table["box1"])
	}
}

func TestRefreshDetectFailureIsIsolated(t *testing.T) {
	sn := mesh.Snapshot{Peer: map[string]mesh.Peer{
		"nodekey:1": serverPeer("box1", "100.1.1.1"),
		"nodekey:2": serverPeer("box2", "100.1.1.2"),
	}}
	detect := func(ctx context.Context, ip string, port int) (string, error) {
		if ip == "100.1.1.1" {
			return "ubuntu", fmt.Errorf("%w for %s", model.ErrProbeExhausted, ip)
		}
		return "root", nil
	}
	table := model.Table{}
	r := New(detect, nil, 2, 22)
	res, err := r.Refresh(context.Background(), sn, table, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if len(table) != 2 {
		t.Fatalf("probe failure must not abort the batch, got %+v", table)
	}
	if table["box1"].Username != "ubuntu" {
		t.Fatalf("expected fallback username, got %+v", table["box1"])
	}
	if len(res.Notices) != 1 {
		t.Fatalf("expected one notice, got %v", res.Notices)
	}
}
