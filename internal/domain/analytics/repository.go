// Package analytics holds the console's analytics domain: filter state,
// timeline aggregation and range selection.
package analytics

import "context"

// Source defines the contract for reading analytics from the TractStack backend.
type Source interface {
	// FetchAll retrieves the composite analytics payload for the relative hour window.
	FetchAll(ctx context.Context, params map[string]string) (*Payload, error)

	// FetchEpinet retrieves one epinet's flow and activity for the relative hour window.
	FetchEpinet(ctx context.Context, epinetID string, params map[string]string) (*Payload, error)

	// ContentSummary retrieves the hottest content items.
	ContentSummary(ctx context.Context) ([]HotItem, error)

	// ContentMap retrieves titles and types for all content. An unchanged map
	// since lastUpdated returns (nil, lastUpdated, nil).
	ContentMap(ctx context.Context, lastUpdated int64) ([]ContentInfo, int64, error)
}
