package api

import (
	"context"

	"github.com/wpsim/hairpin/src/internal/proxy"
	"github.com/wpsim/hairpin/src/internal/service"
)

// Reconciler is the part of the routing service the API exposes.
type Reconciler interface {
	Apply(ctx context.Context) *service.Report
	Status(ctx context.Context) *service.Report
	Bindings() ([]proxy.Binding, error)
	ProxyConfig() (string, error)
}
