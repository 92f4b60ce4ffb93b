package statestore

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	val := map[string]any{"count": 3}
	if err := store.Set(ctx, "k1", val); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if !reflect.DeepEqual(got, val) {
		t.Errorf("got %v, want %v", got, val)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	got, ok, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || got != nil {
		t.Errorf("expected absent, got %v (ok=%v)", got, ok)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, k := range []string{
		"external,event_count,STUDENT:b",
		"external,event_count,STUDENT:a",
		"internal,event_count,STUDENT:a",
		"external,other,STUDENT:a",
	} {
		_ = store.Set(ctx, k, 1)
	}

	got, err := store.Keys(ctx, "external,event_count,*")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"external,event_count,STUDENT:a", "external,event_count,STUDENT:b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMemoryStore_KeysBadPattern(t *testing.T) {
	if _, err := NewMemoryStore().Keys(context.Background(), "["); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestMemoryStore_MultiGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, "a", 1)
	_ = store.Set(ctx, "c", 3)

	got, err := store.MultiGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MultiGet failed: %v", err)
	}
	want := []any{1, nil, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, "k1", "v")
	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get: expected context.Canceled, got %v", err)
	}
	if err := store.Set(ctx, "k", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Set: expected context.Canceled, got %v", err)
	}
}
