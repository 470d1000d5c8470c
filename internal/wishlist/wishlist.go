// Package wishlist tracks which products a session has wishlisted. The only
// read the UI needs is presence-testing, so membership is a set keyed by
// product UID rather than a list.
package wishlist

import (
	"context"
	"net/http"
	"sync"

	"github.com/jawad0110/taqa-bff/internal/backend"
)

// Container mirrors one session's wishlist membership. Unlike the cart there
// is no optimistic mutation: the local set changes only after the backend
// confirms, so a failed call leaves membership exactly as it was.
type Container struct {
	client *backend.Client

	mu      sync.RWMutex
	members map[string]struct{}
}

// NewContainer creates an empty wishlist mirror.
func NewContainer(client *backend.Client) *Container {
	return &Container{
		client:  client,
		members: make(map[string]struct{}),
	}
}

// Contains reports local membership for productUID.
func (c *Container) Contains(productUID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[productUID]
	return ok
}

// Products returns the current membership as a slice.
func (c *Container) Products() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.members))
	for uid := range c.members {
		out = append(out, uid)
	}
	return out
}

// Hydrate replaces local membership with the backend's wishlist.
func (c *Container) Hydrate(ctx context.Context, ts backend.TokenSource) error {
	var resp struct {
		Products []string `json:"products"`
	}
	if err := c.client.Get(ctx, ts, "/wishlist", &resp); err != nil {
		return err
	}
	members := make(map[string]struct{}, len(resp.Products))
	for _, uid := range resp.Products {
		members[uid] = struct{}{}
	}
	c.mu.Lock()
	c.members = members
	c.mu.Unlock()
	return nil
}

// BatchCheck resolves membership for many products in one round-trip and
// folds the answer into the local set. Used by listing pages to avoid one
// call per rendered product.
func (c *Container) BatchCheck(ctx context.Context, ts backend.TokenSource, productUIDs []string) (map[string]bool, error) {
	var resp struct {
		Wishlisted []string `json:"wishlisted"`
	}
	err := c.client.Post(ctx, ts, "/wishlist/check", map[string][]string{"product_uids": productUIDs}, &resp)
	if err != nil {
		return nil, err
	}

	wishlisted := make(map[string]struct{}, len(resp.Wishlisted))
	for _, uid := range resp.Wishlisted {
		wishlisted[uid] = struct{}{}
	}

	result := make(map[string]bool, len(productUIDs))
	c.mu.Lock()
	for _, uid := range productUIDs {
		_, ok := wishlisted[uid]
		result[uid] = ok
		if ok {
			c.members[uid] = struct{}{}
		} else {
			delete(c.members, uid)
		}
	}
	c.mu.Unlock()
	return result, nil
}

// Add wishlists the product, mutating the local set only on confirmed success.
func (c *Container) Add(ctx context.Context, ts backend.TokenSource, productUID string) error {
	if err := c.client.Do(ctx, ts, http.MethodPut, "/wishlist/"+productUID, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.members[productUID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Remove un-wishlists the product, mutating the local set only on confirmed
// success.
func (c *Container) Remove(ctx context.Context, ts backend.TokenSource, productUID string) error {
	if err := c.client.Do(ctx, ts, http.MethodDelete, "/wishlist/"+productUID, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.members, productUID)
	c.mu.Unlock()
	return nil
}

// Toggle adds or removes based on current local membership.
func (c *Container) Toggle(ctx context.Context, ts backend.TokenSource, productUID string) (wishlisted bool, err error) {
	if c.Contains(productUID) {
		return false, c.Remove(ctx, ts, productUID)
	}
	return true, c.Add(ctx, ts, productUID)
}
