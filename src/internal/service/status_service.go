package service

import (
	"context"
	"fmt"

	"github.com/wpsim/hairpin/src/internal/identity"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/proxy"
)

// ComponentCheck is the observed state of one networking component.
type ComponentCheck struct {
	Identity    int    `json:"identity,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Command     string `json:"command,omitempty"`
	Exists      bool   `json:"exists"`
	ShouldExist bool   `json:"should_exist"`
	Conflict    string `json:"conflict,omitempty"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message"`
}

// Status checks every component against live kernel state without mutating
// anything. Identities whose routing is not converged are reported as pending.
func (s *RoutingService) Status(ctx context.Context) *Report {
	report, start := s.begin()
	if report.fatal == nil {
		s.status(report)
	}
	report.finish(s.mutations() - start)
	return report
}

func (s *RoutingService) status(report *Report) {
	identities, err := s.provisioner.Discover()
	if err != nil {
		report.fatal = err
		return
	}
	report.setIdentities(s, identities)

	for _, component := range s.networkManager.HostComponents() {
		report.Checks = append(report.Checks, checkComponent(component))
	}

	targets := identity.Targets(identities)
	for _, t := range targets {
		if t.Address == nil {
			continue
		}
		for _, component := range s.networkManager.IdentityComponents(t) {
			report.Checks = append(report.Checks, checkComponent(component))
		}
	}
	results := s.networkManager.CheckRouting(targets)
	report.setRouting(results)

	bindings := proxy.BuildBindings(s.cfg, addresses(bindable(identities, results)))
	report.setBindings(bindings)

	for i := range report.Identities {
		ir := &report.Identities[i]
		if !ir.Status.IsDegraded() && ir.Routing != networking.StateConverged.String() {
			ir.Status = StatusPending
		}
	}

	result := proxy.Check(s.cfg, bindings)
	report.Proxy = &result
	report.Checks = append(report.Checks, ComponentCheck{
		Type:        "proxy_config",
		Description: "Proxy configuration matches the identity bindings",
		Exists:      result.Status == proxy.StatusUnchanged,
		ShouldExist: true,
		Passed:      result.Status == proxy.StatusUnchanged,
		Message:     fmt.Sprintf("%s (%d bindings): %s", result.Path, result.Bindings, result.Status),
	})
}

func checkComponent(component networking.NetworkingComponent) ComponentCheck {
	check := ComponentCheck{
		Identity:    component.GetIdentity(),
		Type:        string(component.GetType()),
		Description: component.GetDescription(),
		Command:     component.GetCommand(),
		ShouldExist: component.ShouldExist(),
	}

	exists, err := component.IsExists()
	if err != nil {
		check.Message = fmt.Sprintf("Error checking: %v", err)
		return check
	}
	check.Exists = exists

	if check.ShouldExist {
		if conflict, err := component.Conflict(); err != nil {
			check.Message = fmt.Sprintf("Error checking: %v", err)
			return check
		} else if conflict != "" {
			check.Conflict = conflict
			check.Message = "conflict: " + conflict
			return check
		}
	}

	check.Passed = exists == check.ShouldExist
	switch {
	case exists && check.ShouldExist:
		check.Message = "exists"
	case !exists && check.ShouldExist:
		check.Message = "does NOT exist (missing)"
	case exists && !check.ShouldExist:
		check.Message = "exists but should NOT (unexpected)"
	default:
		check.Message = "not present"
	}
	return check
}

// LogChecks prints every component check the way the self-check does.
func (r *Report) LogChecks() {
	for _, c := range r.Checks {
		prefix := fmt.Sprintf("[%s] %s", c.Type, c.Description)
		if c.Identity > 0 {
			prefix = fmt.Sprintf("[identity %d] %s", c.Identity, prefix)
		}
		if c.Passed {
			log.Infof("%s: %s", prefix, c.Message)
		} else {
			log.Errorf("%s: %s", prefix, c.Message)
		}
	}
}
