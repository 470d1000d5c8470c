package wishlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jawad0110/taqa-bff/internal/backend"
)

type staticToken string

func (s staticToken) AccessToken() string                     { return string(s) }
func (s staticToken) Refresh(context.Context) (string, error) { return string(s), nil }

type fakeBackend struct {
	mu       sync.Mutex
	products map[string]struct{}
	failMut  bool
}

func newFakeBackend(seed ...string) *fakeBackend {
	f := &fakeBackend{products: make(map[string]struct{})}
	for _, uid := range seed {
		f.products[uid] = struct{}{}
	}
	return f
}

func (f *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/wishlist":
		uids := make([]string, 0, len(f.products))
		for uid := range f.products {
			uids = append(uids, uid)
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"products": uids})

	case r.Method == http.MethodPost && r.URL.Path == "/wishlist/check":
		var payload struct {
			ProductUIDs []string `json:"product_uids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		var wishlisted []string
		for _, uid := range payload.ProductUIDs {
			if _, ok := f.products[uid]; ok {
				wishlisted = append(wishlisted, uid)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"wishlisted": wishlisted})

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/wishlist/"):
		if f.failMut {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.products[strings.TrimPrefix(r.URL.Path, "/wishlist/")] = struct{}{}

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/wishlist/"):
		if f.failMut {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		delete(f.products, strings.TrimPrefix(r.URL.Path, "/wishlist/"))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestContainer(t *testing.T, f *fakeBackend) *Container {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return NewContainer(backend.New(backend.Config{BaseURL: server.URL}, nil))
}

func TestHydrateAndContains(t *testing.T) {
	f := newFakeBackend("p1", "p2")
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Hydrate(context.Background(), ts); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if !c.Contains("p1") || !c.Contains("p2") {
		t.Error("hydrated membership missing seeded products")
	}
	if c.Contains("p3") {
		t.Error("Contains(p3) = true, want false")
	}
}

func TestAddConfirmedSuccess(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, "p1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !c.Contains("p1") {
		t.Error("membership not updated after confirmed add")
	}
}

// Failed mutations must leave local membership untouched; the wishlist has
// no optimistic path.
func TestFailedMutationLeavesMembershipUnchanged(t *testing.T) {
	f := newFakeBackend("p1")
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Hydrate(context.Background(), ts); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}

	f.mu.Lock()
	f.failMut = true
	f.mu.Unlock()

	if err := c.Add(context.Background(), ts, "p2"); err == nil {
		t.Fatal("Add() should fail")
	}
	if c.Contains("p2") {
		t.Error("failed add corrupted local membership")
	}

	if err := c.Remove(context.Background(), ts, "p1"); err == nil {
		t.Fatal("Remove() should fail")
	}
	if !c.Contains("p1") {
		t.Error("failed remove corrupted local membership")
	}
}

func TestBatchCheck(t *testing.T) {
	f := newFakeBackend("p1", "p3")
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	result, err := c.BatchCheck(context.Background(), ts, []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatalf("BatchCheck() error = %v", err)
	}
	want := map[string]bool{"p1": true, "p2": false, "p3": true}
	for uid, expected := range want {
		if result[uid] != expected {
			t.Errorf("result[%s] = %v, want %v", uid, result[uid], expected)
		}
	}
	// The local set is folded in for subsequent Contains checks.
	if !c.Contains("p1") || c.Contains("p2") || !c.Contains("p3") {
		t.Error("BatchCheck did not update local membership")
	}
}

func TestToggle(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	wishlisted, err := c.Toggle(context.Background(), ts, "p1")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !wishlisted || !c.Contains("p1") {
		t.Error("first toggle should add")
	}

	wishlisted, err = c.Toggle(context.Background(), ts, "p1")
	if err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if wishlisted || c.Contains("p1") {
		t.Error("second toggle should remove")
	}
}
