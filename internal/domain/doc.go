// Package domain models fire-detection sensor sites ("nodes") and their
// readings, and holds the pure transforms of the threat engine: severity
// classification, great-circle distance, filtering, and reporting aggregates.
//
// # Data Source
//
// Node topology is loaded from the operator database; readings arrive as JSON
// messages on the readings Kafka topic. Both are read-only to this package.
// Nothing here performs I/O, and no function returns an error: malformed input
// degrades to well-defined sentinels instead.
//
// # Timestamp Conventions
//
// Upstream producers encode timestamps inconsistently. All of them are
// resolved once, at the decoding boundary, into a [Timestamp]:
//
//	1714144200000                         epoch milliseconds
//	1714144200                            epoch seconds (values below 1e11)
//	"1714144200000"                       numeric string, same rules
//	"2024-04-26T15:10:00Z"                RFC 3339 / ISO-8601, fraction and zone optional
//	"2024-04-26"                          bare date, midnight UTC
//	{"seconds":1714144200,"nanoseconds":0}    provider-native object
//	{"_seconds":1714144200,"_nanoseconds":0}  provider-native object (serialized form)
//
// Anything else is Unparseable. Unparseable items are excluded from
// time-bounded views but still counted in unfiltered totals.
//
// # Severity Classification
//
// Each reading maps to exactly one tier, CRITICAL > HIGH > MODERATE > WATCH:
//
//	fire flag set:    temp ≥ 80°C or CO2 ≥ 450ppm or confidence ≥ 0.92  CRITICAL
//	                  temp ≥ 65°C or CO2 ≥ 380ppm or confidence ≥ 0.75  HIGH
//	                  otherwise                                        MODERATE
//	fire flag clear:  temp ≥ 55°C or confidence ≥ 0.6                   MODERATE
//	                  otherwise                                        WATCH
//
// Missing numeric fields decode as 0. The thresholds live in [Thresholds] and
// can be overridden through configuration only.
//
// # Geospatial Conventions
//
// Coordinates are WGS-84 degrees. A node without coordinates (or with
// out-of-range ones) is left out of every geospatial layer but still counts
// in non-geographic aggregates. Distances use the haversine formula on a
// sphere of mean Earth radius; relative error stays well under 0.5% at the
// regional scale the network covers.
package domain
