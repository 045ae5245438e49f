package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/storage"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	if err := kv.Set(ctx, "devices:guest", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, ok, err := kv.Get(ctx, "devices:guest")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(raw) != `[]` {
		t.Errorf("got %q, want []", raw)
	}

	_, ok, err = kv.Get(ctx, "devices:other")
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if ok {
		t.Error("absent key reported present")
	}

	if err := kv.Delete(ctx, "devices:guest"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := kv.Delete(ctx, "devices:guest"); err != nil {
		t.Fatalf("double delete should not error: %v", err)
	}
}

func TestMemoryStore_KeysPrefix(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"devices:a", "devices:b", "thumbs:a"} {
		if err := kv.Set(ctx, k, []byte(`{}`)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	keys, err := kv.Keys(ctx, "devices:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("got %d keys, want 2: %v", len(keys), keys)
	}
}

func TestGetJSON_MalformedValueReadsAsAbsent(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()

	if err := kv.Set(ctx, "meta:guest", []byte(`{not json`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	out := map[string]string{"keep": "me"}
	if storage.GetJSON(ctx, kv, "meta:guest", &out) {
		t.Error("malformed value must read as no data")
	}
	if out["keep"] != "me" {
		t.Error("out must be left untouched on decode failure")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	kv, err := storage.NewFileStore(storage.FileStoreConfig{
		Dir:    t.TempDir(),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	ctx := context.Background()
	if err := kv.Set(ctx, "devices:guest", []byte(`[{"deviceCode":"ge-sd-0001"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, ok, err := kv.Get(ctx, "devices:guest")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(raw) == 0 {
		t.Error("empty value read back")
	}

	keys, err := kv.Keys(ctx, "devices:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "devices:guest" {
		t.Errorf("keys = %v, want [devices:guest]", keys)
	}
}

func TestFileStore_ExternalChangeNotifies(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var changed []string
	kv, err := storage.NewFileStore(storage.FileStoreConfig{
		Dir:    dir,
		Logger: zerolog.Nop(),
		OnChange: func(key string) {
			mu.Lock()
			changed = append(changed, key)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	// A second store instance in the same directory stands in for
	// another process mutating the state.
	other, err := storage.NewFileStore(storage.FileStoreConfig{Dir: dir, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer other.Close()

	if err := other.Set(context.Background(), "deleted:guest", []byte(`["ge-sd-0001"]`)); err != nil {
		t.Fatalf("external set: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(changed)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changed) == 0 {
		t.Fatal("no change notification for external write")
	}
	if changed[0] != "deleted:guest" {
		t.Errorf("changed key = %q, want deleted:guest", changed[0])
	}
}
