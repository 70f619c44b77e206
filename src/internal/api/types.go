package api

import (
	"github.com/wpsim/hairpin/src/internal/proxy"
	"github.com/wpsim/hairpin/src/internal/service"
)

// DataResponse wraps successful responses.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// IdentitiesResponse lists the identity pool.
type IdentitiesResponse struct {
	Identities []service.IdentityReport `json:"identities"`
}

// BindingsResponse lists the proxy endpoints.
type BindingsResponse struct {
	Bindings []proxy.Binding `json:"bindings"`
}

// HealthResponse reports server liveness and whether a run is in progress.
type HealthResponse struct {
	Healthy bool `json:"healthy"`
	Busy    bool `json:"busy"`
}
