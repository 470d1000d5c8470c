// Package cart keeps a per-session in-memory mirror of the backend cart,
// optimizing for perceived latency. The backend stays the source of truth:
// any mutation the backend rejects is resolved by re-fetching its state,
// never by merging locally.
package cart

import (
	"context"
	"net/http"
	"sync"

	"github.com/jawad0110/taqa-bff/internal/backend"
	"github.com/jawad0110/taqa-bff/internal/logging"
)

// Item mirrors one backend cart line.
type Item struct {
	ID          string `json:"id"`
	ProductUID  string `json:"product_uid"`
	ProductName string `json:"product_name"`
	VariantUID  string `json:"variant_uid,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Stock       int    `json:"stock"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Totals mirrors the backend-computed cart totals, in integer cents.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// AddRequest is the payload for adding a product to the cart. The backend
// assigns the item ID and resolves variant pricing and stock.
type AddRequest struct {
	ProductUID string `json:"product_uid"`
	VariantUID string `json:"variant_uid,omitempty"`
	Quantity   int    `json:"quantity"`
}

// Container mirrors one session's cart.
type Container struct {
	client *backend.Client
	log    *logging.Logger

	mu       sync.Mutex
	items    []Item
	totals   Totals
	hydrated bool
	inflight chan struct{} // non-nil while an authoritative re-fetch runs
}

// NewContainer creates an empty cart mirror.
func NewContainer(client *backend.Client, log *logging.Logger) *Container {
	if log == nil {
		log = logging.NewNop()
	}
	return &Container{client: client, log: log}
}

// Items returns a snapshot of the mirrored item list.
func (c *Container) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Totals returns the last known totals.
func (c *Container) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// FallbackTotals computes a subtotal-only Totals from the mirrored items.
// Served when the backend totals endpoint is unavailable; never used for
// correctness-sensitive decisions.
func (c *Container) FallbackTotals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	var subtotal int64
	for _, item := range c.items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return Totals{Subtotal: subtotal, Total: subtotal}
}

// EnsureHydrated loads the cart from the backend on first use of a session's
// container. Subsequent calls are no-ops.
func (c *Container) EnsureHydrated(ctx context.Context, ts backend.TokenSource) error {
	c.mu.Lock()
	done := c.hydrated
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.Hydrate(ctx, ts)
}

// Hydrate loads items and totals from the backend, replacing local state.
func (c *Container) Hydrate(ctx context.Context, ts backend.TokenSource) error {
	if err := c.Resync(ctx, ts); err != nil {
		return err
	}
	if err := c.RefreshTotals(ctx, ts); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("cart totals refresh failed")
	}
	return nil
}

// Resync replaces the mirrored item list with the backend's. It is
// single-flight: callers arriving while a re-fetch is running wait for that
// one instead of stacking further fetches, so any number of interleaved
// optimistic mutations converge through one authoritative read.
func (c *Container) Resync(ctx context.Context, ts backend.TokenSource) error {
	c.mu.Lock()
	if ch := c.inflight; ch != nil {
		c.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	c.inflight = ch
	c.mu.Unlock()

	var resp struct {
		Items []Item `json:"items"`
	}
	err := c.client.Get(ctx, ts, "/cart", &resp)

	c.mu.Lock()
	if err == nil {
		c.items = resp.Items
		c.hydrated = true
	}
	c.inflight = nil
	c.mu.Unlock()
	close(ch)
	return err
}

// RefreshTotals re-reads the backend-computed totals. Best-effort: failures
// leave the previous totals in place and never roll back item state.
func (c *Container) RefreshTotals(ctx context.Context, ts backend.TokenSource) error {
	var totals Totals
	if err := c.client.Get(ctx, ts, "/cart/totals", &totals); err != nil {
		return err
	}
	c.mu.Lock()
	c.totals = totals
	c.mu.Unlock()
	return nil
}

// Add sends the mutation and re-fetches items and totals. No optimistic
// insert: the server assigns the item ID and resolves variant pricing and
// stock, so there is nothing locally accurate to show before it answers.
func (c *Container) Add(ctx context.Context, ts backend.TokenSource, req AddRequest) error {
	if err := c.client.Post(ctx, ts, "/cart", req, nil); err != nil {
		return err
	}
	if err := c.Resync(ctx, ts); err != nil {
		return err
	}
	if err := c.RefreshTotals(ctx, ts); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("cart totals refresh failed")
	}
	return nil
}

// UpdateQuantity applies the new quantity locally first, then confirms with
// the backend. A rejected or failed mutation discards the optimistic change
// by re-syncing to the backend's list.
func (c *Container) UpdateQuantity(ctx context.Context, ts backend.TokenSource, itemID string, quantity int) error {
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == itemID {
			c.items[i].Quantity = quantity
			break
		}
	}
	c.mu.Unlock()

	err := c.client.Patch(ctx, ts, "/cart/items/"+itemID, map[string]int{"quantity": quantity}, nil)
	if err != nil {
		if syncErr := c.Resync(ctx, ts); syncErr != nil {
			c.log.WithContext(ctx).WithError(syncErr).Warn("cart resync after failed update")
		}
		return err
	}
	if err := c.RefreshTotals(ctx, ts); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("cart totals refresh failed")
	}
	return nil
}

// Remove deletes the item locally first, then confirms with the backend,
// re-syncing on failure.
func (c *Container) Remove(ctx context.Context, ts backend.TokenSource, itemID string) error {
	c.mu.Lock()
	kept := c.items[:0]
	for _, item := range c.items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	c.items = kept
	c.mu.Unlock()

	err := c.client.Do(ctx, ts, http.MethodDelete, "/cart/items/"+itemID, nil, nil)
	if err != nil {
		if syncErr := c.Resync(ctx, ts); syncErr != nil {
			c.log.WithContext(ctx).WithError(syncErr).Warn("cart resync after failed remove")
		}
		return err
	}
	if err := c.RefreshTotals(ctx, ts); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("cart totals refresh failed")
	}
	return nil
}

// Clear delegates to the backend delete-all endpoint, then re-fetches.
func (c *Container) Clear(ctx context.Context, ts backend.TokenSource) error {
	if err := c.client.Delete(ctx, ts, "/cart", nil); err != nil {
		return err
	}
	if err := c.Resync(ctx, ts); err != nil {
		return err
	}
	if err := c.RefreshTotals(ctx, ts); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("cart totals refresh failed")
	}
	return nil
}

// Empty discards local state without calling the backend. Used on session loss.
func (c *Container) Empty() {
	c.mu.Lock()
	c.items = nil
	c.totals = Totals{}
	c.hydrated = false
	c.mu.Unlock()
}
