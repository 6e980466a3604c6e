package domain

import "context"

// Geocoder resolves free-text addresses to coordinates.
type Geocoder interface {
	// Geocode returns the top-ranked match for address, or nil when the
	// search has no results. token is a bearer token owned by the caller.
	Geocode(ctx context.Context, address, token string) (*Coordinates, error)
}
