// Package utils provides small helpers shared across hairpin.
//
//   - IP helpers: single-host networks, default-destination checks, subnet
//     membership and deterministic identity MAC addresses
//   - File helpers: atomic replace, path resolution, close-with-warning
//   - Run lock: an exclusive flock serializing hairpin runs on one host
package utils
