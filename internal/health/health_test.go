package health

import (
	"context"
	"errors"
	"testing"
)

func TestRunAll_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.RunAll(context.Background())
	if !healthy {
		t.Error("empty registry reported unhealthy")
	}
	if len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}

func TestRunAll_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", func(ctx context.Context) error { return nil })
	r.Register("ledger", func(ctx context.Context) error { return nil })

	healthy, statuses := r.RunAll(context.Background())
	if !healthy {
		t.Error("healthy checks reported unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	// Registration order is preserved.
	if statuses[0].Name != "postgres" || statuses[1].Name != "ledger" {
		t.Errorf("unexpected order: %v", statuses)
	}
}

func TestRunAll_OneFailing(t *testing.T) {
	r := NewRegistry()
	r.Register("postgres", func(ctx context.Context) error { return nil })
	r.Register("ledger", func(ctx context.Context) error { return errors.New("connection refused") })

	healthy, statuses := r.RunAll(context.Background())
	if healthy {
		t.Error("failing check reported healthy")
	}
	if statuses[1].Healthy || statuses[1].Detail != "connection refused" {
		t.Errorf("failing status not reported: %+v", statuses[1])
	}
	if !statuses[0].Healthy {
		t.Error("healthy subsystem marked unhealthy")
	}
}

func TestRegister_ReplacesSameName(t *testing.T) {
	r := NewRegistry()
	r.Register("db", func(ctx context.Context) error { return errors.New("old") })
	r.Register("db", func(ctx context.Context) error { return nil })

	healthy, statuses := r.RunAll(context.Background())
	if !healthy {
		t.Error("replaced check still failing")
	}
	if len(statuses) != 1 {
		t.Errorf("expected 1 status, got %d", len(statuses))
	}
}

func TestRunAll_ChecksGetTimeoutContext(t *testing.T) {
	r := NewRegistry()
	r.Register("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	healthy, _ := r.RunAll(context.Background())
	if !healthy {
		t.Error("check did not receive a deadline context")
	}
}
