package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheckAllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, map[string]ComponentChecker{
		"reasoning":  &mockChecker{},
		"structured": &mockChecker{},
		"index":      &mockChecker{},
	})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("status = %q, want %q", r.Status, Healthy)
	}
	for _, name := range []string{"database", "reasoning", "structured", "index"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("check %s = %q, want %q", name, r.Checks[name], CheckOK)
		}
	}
}

func TestCheckDatabaseDown(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("refused")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("status = %q, want %q", r.Status, Degraded)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("database = %q, want %q", r.Checks["database"], CheckError)
	}
}

func TestCheckComponentDown(t *testing.T) {
	svc := New(&mockPinger{}, map[string]ComponentChecker{
		"reasoning": &mockChecker{err: errors.New("502")},
		"index":     &mockChecker{},
	})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("status = %q, want %q", r.Status, Degraded)
	}
	if r.Checks["reasoning"] != CheckError || r.Checks["index"] != CheckOK {
		t.Errorf("checks = %v", r.Checks)
	}
}
