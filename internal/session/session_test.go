package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type failingBackend struct {
	MemoryBackend
	saveErr  error
	clearErr error
}

func (f *failingBackend) Save(s Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBackend.Save(s)
}

func (f *failingBackend) Clear() error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryBackend.Clear()
}

func newFileStore(t *testing.T, path string) *Store {
	t.Helper()
	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store, err := Open(backend)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestLastWriteWinsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	alice := Session{ID: "1", Email: "alice@x.com", Name: "Alice", Token: "tok-a"}
	bob := Session{ID: "2", Email: "bob@x.com", Name: "Bob", Token: "tok-b"}

	type op struct {
		set   *Session
		clear bool
	}
	sequences := map[string][]op{
		"set":             {{set: &alice}},
		"set set":         {{set: &alice}, {set: &bob}},
		"set clear":       {{set: &alice}, {clear: true}},
		"clear set":       {{clear: true}, {set: &bob}},
		"set clear set":   {{set: &alice}, {clear: true}, {set: &bob}},
		"clear clear":     {{clear: true}, {clear: true}},
		"set set clear":   {{set: &alice}, {set: &bob}, {clear: true}},
		"set clear clear": {{set: &bob}, {clear: true}, {clear: true}},
	}

	for name, ops := range sequences {
		t.Run(name, func(t *testing.T) {
			_ = os.Remove(path)
			store := newFileStore(t, path)

			var want Session
			var wantOK bool
			for _, o := range ops {
				if o.clear {
					if err := store.Clear(); err != nil {
						t.Fatalf("Clear: %v", err)
					}
					want, wantOK = Session{}, false
				} else {
					if err := store.Set(*o.set); err != nil {
						t.Fatalf("Set: %v", err)
					}
					want, wantOK = *o.set, true
				}
				got, ok := store.Get()
				if ok != wantOK || got != want {
					t.Fatalf("Get()=(%+v,%v), want (%+v,%v)", got, ok, want, wantOK)
				}
				if store.IsAuthenticated() != wantOK {
					t.Fatalf("IsAuthenticated()=%v, want %v", store.IsAuthenticated(), wantOK)
				}
			}

			reloaded := newFileStore(t, path)
			got, ok := reloaded.Get()
			if ok != wantOK || got != want {
				t.Fatalf("after restart Get()=(%+v,%v), want (%+v,%v)", got, ok, want, wantOK)
			}
		})
	}
}

func TestSetRejectsEmptyToken(t *testing.T) {
	store, err := Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(Session{ID: "1", Token: "  "}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("Set err=%v, want ErrEmptyToken", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("session should not be present")
	}
}

func TestSetPersistFailureKeepsMemory(t *testing.T) {
	backend := &failingBackend{}
	store, err := Open(backend)
	if err != nil {
		t.Fatal(err)
	}
	first := Session{ID: "1", Token: "t1"}
	if err := store.Set(first); err != nil {
		t.Fatal(err)
	}

	backend.saveErr = errors.New("disk full")
	if err := store.Set(Session{ID: "2", Token: "t2"}); err == nil {
		t.Fatal("expected save error")
	}
	got, ok := store.Get()
	if !ok || got != first {
		t.Fatalf("Get()=(%+v,%v), want previous session", got, ok)
	}
}

func TestClearAlwaysDropsMemory(t *testing.T) {
	backend := &failingBackend{}
	store, _ := Open(backend)
	if err := store.Set(Session{ID: "1", Token: "t1"}); err != nil {
		t.Fatal(err)
	}
	backend.clearErr = errors.New("permission denied")
	if err := store.Clear(); err == nil {
		t.Fatal("expected backend error to surface")
	}
	if store.IsAuthenticated() || store.Token() != "" {
		t.Fatal("memory should be cleared even when backend fails")
	}
}

func TestSubscribe(t *testing.T) {
	store, _ := Open(nil)
	var events []bool
	store.Subscribe(func(_ Session, ok bool) { events = append(events, ok) })

	_ = store.Clear() // no session yet: no event
	_ = store.Set(Session{ID: "1", Token: "t"})
	_ = store.Clear()

	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("events=%v, want [true false]", events)
	}
}

func TestFileBackendPermissionsAndGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	backend, err := NewFileBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.Save(Session{ID: "1", Token: "t"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o, want 600", perm)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(backend); err == nil {
		t.Fatal("expected parse error for corrupt session file")
	}

	if err := backend.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := backend.Clear(); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}
}
