package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jawad0110/taqa-bff/internal/backend"
)

type staticToken string

func (s staticToken) AccessToken() string                     { return string(s) }
func (s staticToken) Refresh(context.Context) (string, error) { return string(s), nil }

// fakeBackend is an in-memory cart backend. Mutations can be made to fail or
// drop (connection cut) to exercise the rollback paths.
type fakeBackend struct {
	mu     sync.Mutex
	items  []Item
	totals Totals
	nextID int

	failPatch  bool
	dropPatch  bool
	failDelete bool

	getCalls   int
	patchCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 1}
}

func (f *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return server
}

func (f *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/cart":
		f.getCalls++
		_ = json.NewEncoder(w).Encode(map[string][]Item{"items": f.items})

	case r.Method == http.MethodGet && r.URL.Path == "/cart/totals":
		_ = json.NewEncoder(w).Encode(f.totals)

	case r.Method == http.MethodPost && r.URL.Path == "/cart":
		var req AddRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		item := Item{
			ID:         fmt.Sprintf("item-%d", f.nextID),
			ProductUID: req.ProductUID,
			Quantity:   req.Quantity,
			UnitPrice:  1000,
			Stock:      10,
		}
		f.nextID++
		f.items = append(f.items, item)
		f.recomputeTotals()
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/cart/items/"):
		f.patchCalls++
		if f.dropPatch {
			// Simulate a network partition: cut the connection mid-request.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if f.failPatch {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "insufficient stock"})
			return
		}
		itemID := strings.TrimPrefix(r.URL.Path, "/cart/items/")
		var payload struct {
			Quantity int `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		for i := range f.items {
			if f.items[i].ID == itemID {
				f.items[i].Quantity = payload.Quantity
			}
		}
		f.recomputeTotals()

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/cart/items/"):
		if f.failDelete {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "item locked by pending order"})
			return
		}
		itemID := strings.TrimPrefix(r.URL.Path, "/cart/items/")
		kept := f.items[:0]
		for _, item := range f.items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		f.items = kept
		f.recomputeTotals()

	case r.Method == http.MethodDelete && r.URL.Path == "/cart":
		f.items = nil
		f.recomputeTotals()

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) recomputeTotals() {
	var subtotal int64
	for _, item := range f.items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	f.totals = Totals{Subtotal: subtotal, Shipping: 500, Total: subtotal + 500}
}

func newTestContainer(t *testing.T, f *fakeBackend) *Container {
	t.Helper()
	server := f.server(t)
	client := backend.New(backend.Config{BaseURL: server.URL}, nil)
	return NewContainer(client, nil)
}

func TestAddRefetchesAuthoritativeState(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, AddRequest{ProductUID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	items := c.Items()
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	// Server-assigned fields must be present, proving the list came from the
	// backend rather than an optimistic insert.
	if items[0].ID != "item-1" || items[0].UnitPrice != 1000 {
		t.Errorf("item = %+v, want server-assigned ID and price", items[0])
	}
	if got := c.Totals(); got.Total != 2500 {
		t.Errorf("totals = %+v, want total 2500", got)
	}
}

func TestUpdateQuantityOptimisticThenConfirmed(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, AddRequest{ProductUID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := c.UpdateQuantity(context.Background(), ts, "item-1", 5); err != nil {
		t.Fatalf("UpdateQuantity() error = %v", err)
	}
	if got := c.Items()[0].Quantity; got != 5 {
		t.Errorf("quantity = %d, want 5", got)
	}
}

// A rejected mutation must converge to the backend's state, never keep the
// optimistic value.
func TestUpdateQuantityRollbackOnRejection(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, AddRequest{ProductUID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	f.mu.Lock()
	f.failPatch = true
	f.mu.Unlock()

	if err := c.UpdateQuantity(context.Background(), ts, "item-1", 5); err == nil {
		t.Fatal("UpdateQuantity() should fail when the backend rejects")
	}
	if got := c.Items()[0].Quantity; got != 2 {
		t.Errorf("quantity after rollback = %d, want backend-confirmed 2", got)
	}
}

// Scenario from the product spec: add quantity 2, increment to 3 while a
// partition drops the update. Final state converges to 2.
func TestPartitionDuringUpdateConvergesToConfirmedState(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, AddRequest{ProductUID: "pA", Quantity: 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	f.mu.Lock()
	f.dropPatch = true
	f.mu.Unlock()

	err := c.UpdateQuantity(context.Background(), ts, "item-1", 3)
	if err == nil {
		t.Fatal("UpdateQuantity() should surface the dropped request")
	}

	f.mu.Lock()
	f.dropPatch = false
	f.mu.Unlock()

	// If the in-flight resync raced the flag flip, one explicit resync stands
	// in for the next authoritative read.
	if err := c.Resync(context.Background(), ts); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}

	if got := c.Items()[0].Quantity; got != 2 {
		t.Errorf("quantity after partition = %d, want last confirmed 2", got)
	}

	f.mu.Lock()
	backendQty := f.items[0].Quantity
	f.mu.Unlock()
	if backendQty != 2 {
		t.Fatalf("backend quantity = %d, fake backend should not have applied the drop", backendQty)
	}
}

func TestRemoveRollbackOnFailure(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	if err := c.Add(context.Background(), ts, AddRequest{ProductUID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	f.mu.Lock()
	f.failDelete = true
	f.mu.Unlock()

	if err := c.Remove(context.Background(), ts, "item-1"); err == nil {
		t.Fatal("Remove() should fail when the backend rejects")
	}
	// The optimistic removal was rolled back by the authoritative re-fetch.
	if len(c.Items()) != 1 {
		t.Errorf("items = %d, want 1 (optimistic remove discarded)", len(c.Items()))
	}
}

func TestClearEmptiesThroughBackend(t *testing.T) {
	f := newFakeBackend()
	c := newTestContainer(t, f)
	ts := staticToken("tok")

	_ = c.Add(context.Background(), ts, AddRequest{ProductUID: "p1", Quantity: 2})
	_ = c.Add(context.Background(), ts, AddRequest{ProductUID: "p2", Quantity: 1})

	if err := c.Clear(context.Background(), ts); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(c.Items()) != 0 {
		t.Errorf("items after clear = %d, want 0", len(c.Items()))
	}
	if got := c.Totals(); got.Subtotal != 0 {
		t.Errorf("subtotal after clear = %d, want 0", got.Subtotal)
	}
}

func TestFallbackTotalsSumsItems(t *testing.T) {
	c := NewContainer(backend.New(backend.Config{BaseURL: "http://127.0.0.1:1"}, nil), nil)
	c.mu.Lock()
	c.items = []Item{
		{ID: "a", UnitPrice: 1000, Quantity: 2},
		{ID: "b", UnitPrice: 250, Quantity: 4},
	}
	c.mu.Unlock()

	got := c.FallbackTotals()
	if got.Subtotal != 3000 || got.Total != 3000 {
		t.Errorf("FallbackTotals() = %+v, want subtotal 3000", got)
	}
	if got.Shipping != 0 || got.Tax != 0 {
		t.Errorf("fallback must not invent shipping or tax: %+v", got)
	}
}

// Any number of callers needing an authoritative re-fetch share one
// in-flight request.
func TestResyncSingleFlight(t *testing.T) {
	ts := staticToken("tok")

	var fetches int32
	entered := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		close(entered)
		<-release
		_ = json.NewEncoder(w).Encode(map[string][]Item{"items": {{ID: "item-1", Quantity: 2}}})
	}))
	defer server.Close()

	c := NewContainer(backend.New(backend.Config{BaseURL: server.URL}, nil), nil)

	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- c.Resync(context.Background(), ts)
	}()
	<-entered

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Resync(context.Background(), ts); err != nil {
				t.Errorf("waiter Resync() error = %v", err)
			}
		}()
	}

	close(release)
	wg.Wait()
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader Resync() error = %v", err)
	}

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}
	if items := c.Items(); len(items) != 1 || items[0].Quantity != 2 {
		t.Errorf("items = %+v, want the fetched list", items)
	}
}
