package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/rickgao/coinbase-data/internal/apperr"
)

// GetProduct fetches one product. A missing product yields an error matching
// apperr.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	if err := c.get(ctx, "/products/"+url.PathEscape(productID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts fetches the given products in one request. An empty list
// returns every product.
func (c *Client) ListProducts(ctx context.Context, productIDs []string) ([]Product, error) {
	query := url.Values{}
	for _, id := range productIDs {
		query.Add("product_ids", id)
	}

	var resp ProductsResponse
	if err := c.get(ctx, "/products", query, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

// CheckProducts returns the IDs that do not exist or are not tradable.
// All IDs are listed in one request; any the listing omits are looked up
// singly, since the listing is paginated. Lookup failures other than
// not-found are returned as errors.
func (c *Client) CheckProducts(ctx context.Context, productIDs []string) (unusable []string, err error) {
	listed, err := c.ListProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Product, len(listed))
	for _, p := range listed {
		byID[p.ProductID] = p
	}

	for _, id := range productIDs {
		p, ok := byID[id]
		if !ok {
			found, err := c.GetProduct(ctx, id)
			if errors.Is(err, apperr.ErrNotFound) {
				unusable = append(unusable, id)
				continue
			}
			if err != nil {
				return unusable, err
			}
			p = *found
		}
		if !p.Tradable() {
			c.logger.Warn("product not tradable", "product_id", id, "status", p.Status)
			unusable = append(unusable, id)
		}
	}
	return unusable, nil
}
