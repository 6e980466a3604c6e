package domain

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// FilterResidential keeps the residential rows of t in their original order.
// Applying it to an already filtered table returns an identical table.
func FilterResidential(t PropertyTable) PropertyTable {
	return PropertyTable{
		Columns: t.Columns,
		Records: lo.Filter(t.Records, func(r PropertyRecord, _ int) bool {
			return r.Residential()
		}),
	}
}

// JoinTownNames left-joins area names onto records by town code. The result
// has exactly one EnrichedRecord per input record, in input order; records
// whose code is not in idx get a nil Area.
func JoinTownNames(records []PropertyRecord, idx TownIndex) []EnrichedRecord {
	now := clock.Now()
	return lo.Map(records, func(r PropertyRecord, _ int) EnrichedRecord {
		out := EnrichedRecord{PropertyRecord: r, ProcessedAt: now}
		if name, ok := idx.Lookup(r.TownCode()); ok {
			out.Area = &name
		}
		return out
	})
}

// BuildAddress joins the block number and street with a single space.
func BuildAddress(r PropertyRecord) string {
	return r.BlockNumber() + " " + r.Street()
}

// AttachAddresses sets Address on every record.
func AttachAddresses(records []EnrichedRecord) []EnrichedRecord {
	return lo.Map(records, func(r EnrichedRecord, _ int) EnrichedRecord {
		r.Address = BuildAddress(r.PropertyRecord)
		return r
	})
}

// EnrichWithGeocoding looks up the record's address and attaches the match.
// A search with no results leaves Location nil and is not an error; any
// geocoder failure is returned as is.
func EnrichWithGeocoding(ctx context.Context, record EnrichedRecord, geocoder Geocoder, token string) (EnrichedRecord, error) {
	coords, err := geocoder.Geocode(ctx, record.Address, token)
	if err != nil {
		return record, fmt.Errorf("geocode %q: %w", record.Address, err)
	}
	record.Location = coords
	return record, nil
}
