package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/platinummonkey/iar/pkg/assets"
)

// Storage defines the asset persistence the handlers need
type Storage interface {
	Create(ctx context.Context, a *assets.Asset) (*assets.Asset, error)
	Get(ctx context.Context, id uuid.UUID, v assets.Visibility) (*assets.Asset, error)
	Update(ctx context.Context, a *assets.Asset) (*assets.Asset, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q assets.ListQuery, v assets.Visibility) (*assets.Page, error)
	Stats(ctx context.Context) (*assets.Stats, error)
}

// AssetResponse is an asset as returned by the API
type AssetResponse struct {
	*assets.Asset
	URL            string   `json:"url"`
	AllowedMethods []string `json:"allowed_methods"`
}

// ListResponse is one page of assets. Next and Previous are absolute URLs,
// null at either end.
type ListResponse struct {
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []*AssetResponse `json:"results"`
}
