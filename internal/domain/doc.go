// Package domain models HDB (Housing & Development Board) property records
// published on data.gov.sg and the enrichment applied to them.
//
// # Data Source
//
// The "HDB Property Information" dataset (d_17f5382f26140b1fdae0ba2ef6239d2f)
// lists one row per HDB block. It is too large for inline queries, so the
// export API prepares a CSV asynchronously: the client initiates a download,
// polls until a signed URL appears, then fetches the CSV from that URL.
//
// # Dataset Conventions
//
// Columns used by the pipeline:
//
//	blk_no              block number, e.g. "1", "10A"
//	street              street name, e.g. "BEACH RD"
//	residential         "Y" or "N"; only "Y" rows are kept
//	bldg_contract_town  town code, e.g. "AMK", "BB", "TP"
//
// All other upstream columns are carried through untouched and in their
// original order.
//
// Town codes are only resolvable through the dataset metadata. The
// description of the bldg_contract_town column is a single free-text string
// where each segment holds a town name followed by the next town's code:
//
//	"... AMK - ANG MO KIO BB - BUKIT BATOK BD - BEDOK"
//
// Splitting on " - " and pairing neighbouring segments yields
// (AMK, ANG MO KIO), (BB, BUKIT BATOK), (BD, BEDOK). See [ParseTownMapping].
// The format is not validated upstream: an extra " - " or a multi-word final
// segment shifts the pairs without any error.
//
// # Geocoding
//
// Coordinates come from the OneMap search API, queried with the address
// "<blk_no> <street>". OneMap orders results by its own relevance estimate,
// so the first result is taken as is. A search with no results leaves the
// record without coordinates; it is not an error.
package domain
