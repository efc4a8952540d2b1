package cron

import (
	"context"
	"strings"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA, jobB := &stubJob{name: "payout-run"}, &stubJob{name: "ledger-reconciliation"}
	registry, err := NewRegistry(jobA, nil, jobB)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if got := strings.Join(registry.Names(), ","); got != "payout-run,ledger-reconciliation" {
		t.Fatalf("names = %s", got)
	}
}

func TestRegistryFind(t *testing.T) {
	registry, err := NewRegistry(&stubJob{name: "payout-run"}, &stubJob{name: "ledger-reconciliation"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := registry.Find(" ledger-reconciliation "); got == nil || got.Name() != "ledger-reconciliation" {
		t.Fatalf("expected to find reconciliation job, got %v", got)
	}
	if registry.Find("order-ttl") != nil {
		t.Fatal("expected nil for unknown job")
	}
}

func TestRegistryRejectsDuplicatesAndBlankNames(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "payout-run"}, &stubJob{name: "payout-run"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	var registry Registry
	if err := registry.Register(&stubJob{name: "  "}); err == nil {
		t.Fatal("expected blank name error")
	}
	if err := registry.Register(&stubJob{name: "outbox-retention"}); err != nil {
		t.Fatalf("zero registry should accept jobs: %v", err)
	}
}
