package httpapi

import "testing"

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB on zero, got %d", maxBodyBytes)
	}
}

func TestSetMaxBodyBytes_PositiveSetsValue(t *testing.T) {
	SetMaxBodyBytes(1234)
	defer SetMaxBodyBytes(0)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
}

func TestSetMaxBatchEvents(t *testing.T) {
	SetMaxBatchEvents(7)
	if maxBatchEvents != 7 {
		t.Fatalf("expected 7, got %d", maxBatchEvents)
	}
	SetMaxBatchEvents(-3)
	if maxBatchEvents != 500 {
		t.Fatalf("expected default 500, got %d", maxBatchEvents)
	}
}
