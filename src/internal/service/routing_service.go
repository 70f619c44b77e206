package service

import (
	"context"
	"fmt"
	"net"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/domain"
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/identity"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/proxy"
)

// RoutingService orchestrates a hairpin run.
//
// It has two entry points: Provision (identities, local rule, proxy
// bindings) and Route (hairpin routing of the discovered pool). Apply runs
// both in order.
type RoutingService struct {
	cfg            *config.Config
	networkManager domain.NetworkManager
	provisioner    domain.IdentityProvisioner
	proxyGenerator domain.ProxyGenerator
	mutations      func() int
	validator      *ValidationService
}

// NewRoutingService creates a new routing service.
//
// Parameters:
//   - deps: Kernel, lease and proxy managers sharing one counting kernel handle
//   - validator: Validates configuration before any mutation (optional, can be nil)
func NewRoutingService(deps *domain.AppDependencies, validator *ValidationService) *RoutingService {
	return &RoutingService{
		cfg:            deps.Config(),
		networkManager: deps.NetworkManager(),
		provisioner:    deps.Provisioner(),
		proxyGenerator: deps.ProxyGenerator(),
		mutations:      deps.Mutations,
		validator:      validator,
	}
}

// Provision creates the identities, demotes the local rule, writes the proxy
// bindings and installs the proxy port guard. Identities whose routing is in
// conflict get no binding.
func (s *RoutingService) Provision(ctx context.Context) *Report {
	report, start := s.begin()
	if report.fatal == nil {
		if identities, ok := s.provision(ctx, report); ok {
			results := s.networkManager.CheckRouting(identity.Targets(identities))
			report.setRouting(results)
			s.publish(ctx, report, identities, results)
		}
	}
	report.finish(s.mutations() - start)
	return report
}

// Route discovers the pool from the kernel and installs the hairpin routing
// of every identity that holds an address.
func (s *RoutingService) Route(ctx context.Context) *Report {
	report, start := s.begin()
	if report.fatal == nil {
		if identities, ok := s.discover(report); ok {
			results := s.route(report, identities)
			report.setBindings(proxy.BuildBindings(s.cfg, addresses(bindable(identities, results))))
		}
	}
	report.finish(s.mutations() - start)
	return report
}

// Apply runs Provision and then Route on the provisioned identities. The
// proxy bindings are written last, from the identities whose routing
// installed without conflict or error.
func (s *RoutingService) Apply(ctx context.Context) *Report {
	report, start := s.begin()
	if report.fatal == nil {
		if identities, ok := s.provision(ctx, report); ok {
			results := s.route(report, identities)
			if report.fatal == nil {
				s.publish(ctx, report, identities, results)
			}
		}
	}
	report.finish(s.mutations() - start)
	return report
}

func (s *RoutingService) begin() (*Report, int) {
	report := &Report{}
	if s.validator != nil {
		if err := s.validator.ValidateConfig(s.cfg); err != nil {
			log.Errorf("Configuration validation failed: %v", err)
			report.fatal = err
		}
	}
	return report, s.mutations()
}

func (s *RoutingService) provision(ctx context.Context, report *Report) ([]identity.Identity, bool) {
	identities, err := s.provisioner.Provision(ctx)
	report.setIdentities(s, identities)
	if err != nil {
		report.fatal = err
		return nil, false
	}

	if !s.adjustLocalRule(report) {
		return nil, false
	}

	return identities, true
}

// publish writes the proxy bindings of the identities the routing results
// leave usable, then installs the proxy port guard.
func (s *RoutingService) publish(ctx context.Context, report *Report, identities []identity.Identity, results []networking.HairpinResult) bool {
	bindings := proxy.BuildBindings(s.cfg, addresses(bindable(identities, results)))
	report.setBindings(bindings)
	result := s.proxyGenerator.Apply(ctx, bindings)
	report.Proxy = &result

	changed, err := s.networkManager.ApplyGuard()
	if err != nil {
		if networking.IsPermissionError(err) {
			report.fatal = networking.FatalIfPermission(err, "install the proxy port guard")
			return false
		}
		log.Errorf("Failed to install the proxy port guard: %v", err)
	}
	report.GuardChanged = changed

	return true
}

func (s *RoutingService) discover(report *Report) ([]identity.Identity, bool) {
	identities, err := s.provisioner.Discover()
	if err != nil {
		report.fatal = err
		return nil, false
	}
	report.setIdentities(s, identities)

	// Selectors must never be consulted before the local rule is demoted.
	return identities, s.adjustLocalRule(report)
}

func (s *RoutingService) route(report *Report, identities []identity.Identity) []networking.HairpinResult {
	results := s.networkManager.InstallRouting(identity.Targets(identities))
	for _, res := range results {
		if networking.IsPermissionError(res.Err) {
			report.fatal = networking.FatalIfPermission(res.Err, fmt.Sprintf("install routing of identity %d", res.Index))
			break
		}
	}
	report.setRouting(results)
	return results
}

func (s *RoutingService) adjustLocalRule(report *Report) bool {
	changed, err := s.networkManager.AdjustLocalRule()
	if err != nil {
		if err = networking.FatalIfPermission(err, "move the local rule"); !errors.IsFatal(err) {
			err = errors.NewFatalError("failed to move the local rule", err)
		}
		report.fatal = err
		return false
	}
	report.LocalRuleChanged = report.LocalRuleChanged || changed
	return true
}

// Teardown removes the hairpin routing, restores the local rule and deletes
// the identity interfaces. The proxy configuration file is left in place.
func (s *RoutingService) Teardown() error {
	log.Infof("Removing hairpin configuration...")

	if err := s.networkManager.UndoConfig(s.cfg.Indexes()); err != nil {
		log.Errorf("Failed to undo routing: %v", err)
		return networking.FatalIfPermission(err, "remove routing")
	}

	deleted, err := s.provisioner.Teardown()
	if err != nil {
		log.Errorf("Failed to delete identity interfaces: %v", err)
		return err
	}

	log.Infof("Removed %d identity interfaces", deleted)
	return nil
}

// Bindings returns the proxy bindings of the identities currently holding an
// address whose routing is not in conflict.
func (s *RoutingService) Bindings() ([]proxy.Binding, error) {
	identities, err := s.provisioner.Discover()
	if err != nil {
		return nil, err
	}
	results := s.networkManager.CheckRouting(identity.Targets(identities))
	return proxy.BuildBindings(s.cfg, addresses(bindable(identities, results))), nil
}

// ProxyConfig renders the proxy configuration of the current pool without writing it.
func (s *RoutingService) ProxyConfig() (string, error) {
	bindings, err := s.Bindings()
	if err != nil {
		return "", err
	}
	return proxy.Render(s.cfg, bindings)
}

// bindable returns the usable identities whose routing result carries no
// conflict and no error.
func bindable(identities []identity.Identity, results []networking.HairpinResult) []identity.Identity {
	excluded := make(map[int]bool, len(results))
	for _, res := range results {
		if len(res.Conflicts) > 0 || res.Err != nil {
			excluded[res.Index] = true
		}
	}

	var out []identity.Identity
	for _, id := range identity.Usable(identities) {
		if !excluded[id.Index] {
			out = append(out, id)
		}
	}
	return out
}

func addresses(identities []identity.Identity) map[int]net.IP {
	m := make(map[int]net.IP, len(identities))
	for _, id := range identities {
		m[id.Index] = id.Address
	}
	return m
}
