// Package domain models the COVID-19 case and contextual-metric datasets
// that the refresh pipeline reconciles.
//
// # Data Sources
//
// The pipeline consumes two public upstream feeds with incompatible shapes:
//
//   - Our World in Data (OWID) publishes a flat "latest" snapshot CSV with
//     one row per country and several dozen metric columns (cases, deaths,
//     vaccinations, demographic context). Column names use underscored
//     lowercase ("total_cases_per_million") and are normalized to
//     space-separated Title Case ("Total Cases Per Million") on ingest.
//   - The JHU CSSE COVID-19 repository publishes one wide time-series CSV
//     per metric ("confirmed", "deaths"): one row per sub-national or
//     national region, one column per calendar date (M/D/YY headers),
//     values being cumulative counts.
//
// # Reconciliation Conventions
//
// Aggregate rows:
//
//	OWID snapshot rows whose iso_code starts with "OWID" are continent,
//	income-group, or world totals ("OWID_AFR", "OWID_WRL", ...) rather than
//	countries, and are removed before persistence. See [ExcludeAggregateRows].
//
// Sub-national rows:
//
//	JHU reports some countries split by province/state. Coordinate and
//	subdivision columns are dropped and rows sharing a Country/Region name
//	are summed into one national total per date.
//
// Country names:
//
//	The two sources disagree on eleven country spellings ("Burma" vs
//	"Myanmar", "US" vs "United States", ...). The OWID spelling is the
//	canonical identity; [HarmonizeCountryNames] rewrites JHU spellings into
//	it using a fixed, collision-free mapping. See [countryNameOverrides].
//
// # Derived Artifacts
//
// The time-series artifact is down-sampled to weekly resolution: per
// country, only the first observed date within each Sunday-anchored 7-day
// bucket is kept, bounding artifact size. The daily-differences artifact is
// computed from the full-resolution daily series before down-sampling: global
// totals per date, first-differenced, truncated to the most recent 30
// entries. Negative deltas are preserved as-is; they are a faithful signal of
// upstream revisions to past cumulative totals, not an error.
package domain
