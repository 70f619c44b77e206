// Package api provides the HTTP status server of hairpin.
//
// The server is read-mostly: it reports the identity pool, the proxy
// bindings and the result of a read-only self-check. POST /api/v1/reconcile
// runs a full provisioning and routing pass; concurrent reconcile requests
// are rejected with 409 Conflict because runs must never overlap.
//
// # Response Format
//
// All successful JSON responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "ERROR_CODE",
//	    "message": "Human-readable error message",
//	    "details": { /* optional */ }
//	  }
//	}
//
// Prometheus metrics are exported on /metrics.
package api
