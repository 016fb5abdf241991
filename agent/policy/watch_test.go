package policy

import (
	"context"
	"os"
	"testing"
)

func TestStaleWatcherReportsChangedDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRetriever(t, newBagOfWords())
	path := writeDocument(t, samplePolicies)
	if _, err := r.BuildIndex(ctx, path); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}

	w, err := NewStaleWatcher(r, path, "@every 1h", false)
	if err != nil {
		t.Fatalf("NewStaleWatcher() error = %v", err)
	}

	if stale, err := w.Check(ctx); err != nil || stale {
		t.Fatalf("Check() on fresh index = (%v, %v), want (false, nil)", stale, err)
	}

	if err := os.WriteFile(path, []byte("Gift cards are final sale."), 0o600); err != nil {
		t.Fatalf("rewrite document: %v", err)
	}
	if stale, err := w.Check(ctx); err != nil || !stale {
		t.Fatalf("Check() on changed document = (%v, %v), want (true, nil)", stale, err)
	}
	if !w.Stale() {
		t.Fatal("Stale() = false after a stale check")
	}

	meta, err := r.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if meta.ChunkCount == 1 {
		t.Fatal("index was rebuilt with auto rebuild off")
	}
}

func TestStaleWatcherAutoRebuild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRetriever(t, newBagOfWords())
	path := writeDocument(t, samplePolicies)
	if _, err := r.BuildIndex(ctx, path); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("Gift cards are final sale."), 0o600); err != nil {
		t.Fatalf("rewrite document: %v", err)
	}

	w, err := NewStaleWatcher(r, path, "@every 1h", true)
	if err != nil {
		t.Fatalf("NewStaleWatcher() error = %v", err)
	}
	if stale, err := w.Check(ctx); err != nil || stale {
		t.Fatalf("Check() with auto rebuild = (%v, %v), want (false, nil)", stale, err)
	}

	got, err := r.Query(ctx, "gift cards", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0] != "Gift cards are final sale." {
		t.Fatalf("Query() after auto rebuild = %q", got)
	}
}

func TestStaleWatcherSchedule(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, newBagOfWords())

	if _, err := NewStaleWatcher(r, "policies.txt", "  ", false); err == nil {
		t.Fatal("expected error for empty schedule")
	}
	if _, err := NewStaleWatcher(nil, "policies.txt", "@hourly", false); err == nil {
		t.Fatal("expected error for nil retriever")
	}

	bad, err := NewStaleWatcher(r, "policies.txt", "not a schedule", false)
	if err != nil {
		t.Fatalf("NewStaleWatcher() error = %v", err)
	}
	if err := bad.Start(); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}

	w, err := NewStaleWatcher(r, "policies.txt", "@every 1h", false)
	if err != nil {
		t.Fatalf("NewStaleWatcher() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
}
