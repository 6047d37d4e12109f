package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	chainerrors "chaincore/errors"
)

// providerUnderTest builds each provider flavor against a temp location.
func providersUnderTest(t *testing.T) map[string]DatabaseProvider {
	t.Helper()

	leveldb, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("failed to open leveldb: %v", err)
	}
	boltdb, err := NewBoltProvider(filepath.Join(t.TempDir(), "chain.bolt"))
	if err != nil {
		t.Fatalf("failed to open bolt: %v", err)
	}
	return map[string]DatabaseProvider{
		"memory":  NewMemoryProvider(),
		"leveldb": leveldb,
		"bolt":    boltdb,
	}
}

func TestProviderRoundTrip(t *testing.T) {
	for name, provider := range providersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			if v, err := provider.Get([]byte("missing")); err != nil || v != nil {
				t.Errorf("missing key should yield nil, nil; got %v, %v", v, err)
			}

			if err := provider.Put([]byte("k"), []byte("v")); err != nil {
				t.Fatalf("put: %v", err)
			}
			v, err := provider.Get([]byte("k"))
			if err != nil || string(v) != "v" {
				t.Errorf("expected v, got %q (%v)", v, err)
			}

			ok, err := provider.Has([]byte("k"))
			if err != nil || !ok {
				t.Errorf("expected key to exist, got %t (%v)", ok, err)
			}

			if err := provider.Delete([]byte("k")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if ok, _ := provider.Has([]byte("k")); ok {
				t.Error("key should be gone after delete")
			}
		})
	}
}

func TestProviderBatchAtomicVisibility(t *testing.T) {
	for name, provider := range providersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			provider.Put([]byte("old"), []byte("1"))

			batch := provider.Batch()
			defer batch.Close()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("old"))

			// Nothing visible before Write.
			if ok, _ := provider.Has([]byte("a")); ok {
				t.Fatal("batch writes must not be visible before commit")
			}

			if err := batch.Write(); err != nil {
				t.Fatalf("batch write: %v", err)
			}

			for key, want := range map[string]string{"a": "1", "b": "2"} {
				v, err := provider.Get([]byte(key))
				if err != nil || string(v) != want {
					t.Errorf("key %s: expected %s, got %q (%v)", key, want, v, err)
				}
			}
			if ok, _ := provider.Has([]byte("old")); ok {
				t.Error("batched delete should have removed key")
			}
		})
	}
}

func TestProviderGetBatch(t *testing.T) {
	for name, provider := range providersUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			for i := 0; i < 3; i++ {
				provider.Put([]byte(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("v%d", i)))
			}
			got, err := provider.GetBatch([][]byte{[]byte("k0"), []byte("k2"), []byte("nope")})
			if err != nil {
				t.Fatalf("get batch: %v", err)
			}
			if len(got) != 2 || string(got["k0"]) != "v0" || string(got["k2"]) != "v2" {
				t.Errorf("unexpected multi-get result: %v", got)
			}
		})
	}
}

func TestProviderIteratePrefix(t *testing.T) {
	for name, provider := range providersUnderTest(t) {
		iterable, ok := provider.(IterableProvider)
		if !ok {
			t.Fatalf("%s provider should support iteration", name)
		}
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			provider.Put([]byte("pfx:a"), []byte("1"))
			provider.Put([]byte("pfx:b"), []byte("2"))
			provider.Put([]byte("other"), []byte("3"))

			var seen []string
			err := iterable.IteratePrefix([]byte("pfx:"), func(key, value []byte) bool {
				seen = append(seen, string(key))
				return true
			})
			if err != nil {
				t.Fatalf("iterate: %v", err)
			}
			if len(seen) != 2 {
				t.Errorf("expected 2 prefixed keys, got %v", seen)
			}
		})
	}
}

func TestMemoryProviderInjectedFailure(t *testing.T) {
	provider := NewMemoryProvider()
	provider.FailNextWrites(1)

	batch := provider.Batch()
	batch.Put([]byte("k"), []byte("v"))
	err := batch.Write()
	if !errors.Is(err, chainerrors.ErrIO) {
		t.Fatalf("expected coded i/o error, got %v", err)
	}
	if ok, _ := provider.Has([]byte("k")); ok {
		t.Error("failed batch must not be applied")
	}

	// Second attempt succeeds.
	if err := batch.Write(); err != nil {
		t.Fatalf("retry write: %v", err)
	}
	if ok, _ := provider.Has([]byte("k")); !ok {
		t.Error("retried batch should be applied")
	}
}
