package service

import (
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/identity"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/proxy"
)

// IdentityStatus is the per-identity outcome of a run.
type IdentityStatus string

const (
	StatusProvisioned       IdentityStatus = "provisioned"
	StatusAlreadyConverged  IdentityStatus = "already-converged"
	StatusDegradedNoLease   IdentityStatus = "degraded-no-lease"
	StatusDegradedInterface IdentityStatus = "degraded-interface"
	StatusDegradedConflict  IdentityStatus = "degraded-conflict"
	// StatusPending is reported by status checks for an identity whose routing
	// is not converged yet.
	StatusPending           IdentityStatus = "pending"
)

// IsDegraded reports whether the status isolates the identity.
func (s IdentityStatus) IsDegraded() bool {
	switch s {
	case StatusDegradedNoLease, StatusDegradedInterface, StatusDegradedConflict:
		return true
	}
	return false
}

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFatal   Outcome = "fatal"
)

// Exit codes of the CLI.
const (
	ExitSuccess = 0
	ExitFatal   = 1
	ExitPartial = 3
)

// IdentityReport describes one identity after a run.
type IdentityReport struct {
	Index     int            `json:"index"`
	Interface string         `json:"interface"`
	Address   string         `json:"address,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Table     int            `json:"table"`
	Priority  int            `json:"priority"`
	Routing   string         `json:"routing"`
	Status    IdentityStatus `json:"status"`
	Conflicts []string       `json:"conflicts,omitempty"`
	Error     string         `json:"error,omitempty"`

	changed bool
}

// Report aggregates the tagged per-identity results of a run. It is filled
// without early exit; only a fatal error stops a run.
type Report struct {
	Identities       []IdentityReport `json:"identities"`
	Checks           []ComponentCheck `json:"checks,omitempty"`
	LocalRuleChanged bool             `json:"local_rule_changed"`
	GuardChanged     bool             `json:"guard_changed"`
	Proxy            *proxy.Result    `json:"proxy,omitempty"`
	Mutations        int              `json:"mutations"`
	Outcome          Outcome          `json:"outcome"`
	Error            string           `json:"error,omitempty"`

	fatal error
}

func (r *Report) identity(index int) *IdentityReport {
	for i := range r.Identities {
		if r.Identities[i].Index == index {
			return &r.Identities[i]
		}
	}
	return nil
}

// setIdentities records the provisioning outcome of every identity.
func (r *Report) setIdentities(s *RoutingService, identities []identity.Identity) {
	r.Identities = make([]IdentityReport, 0, len(identities))
	for _, id := range identities {
		ir := IdentityReport{
			Index:     id.Index,
			Interface: id.InterfaceName,
			Table:     s.cfg.TableID(id.Index),
			Priority:  s.cfg.SelectorPriority(id.Index),
			Routing:   networking.StateUnconfigured.String(),
			changed:   id.Changed(),
		}
		if id.Address != nil {
			ir.Address = id.Address.String()
		}

		switch id.Degraded {
		case identity.ReasonNoLease:
			ir.Status = StatusDegradedNoLease
		case identity.ReasonInterface:
			ir.Status = StatusDegradedInterface
		}
		if id.Err != nil {
			ir.Error = id.Err.Error()
		}

		r.Identities = append(r.Identities, ir)
	}
}

// setRouting merges routing results into the identity reports.
func (r *Report) setRouting(results []networking.HairpinResult) {
	for _, res := range results {
		ir := r.identity(res.Index)
		if ir == nil {
			continue
		}
		ir.Routing = res.State.String()
		ir.changed = ir.changed || res.Changed
		ir.Conflicts = res.Conflicts

		if ir.Status.IsDegraded() {
			continue
		}
		switch {
		case len(res.Conflicts) > 0 || errors.IsConflict(res.Err):
			ir.Status = StatusDegradedConflict
		case res.Err != nil:
			ir.Status = StatusDegradedInterface
		}
		if res.Err != nil {
			ir.Error = res.Err.Error()
		}
	}
}

// setBindings records the proxy endpoint of every bound identity.
func (r *Report) setBindings(bindings []proxy.Binding) {
	for _, b := range bindings {
		if ir := r.identity(b.Index); ir != nil {
			ir.Endpoint = b.Endpoint()
		}
	}
}

// finish computes the final statuses and the outcome.
func (r *Report) finish(mutations int) {
	r.Mutations = mutations

	partial := r.Proxy != nil && r.Proxy.Status == proxy.StatusDegraded
	for i := range r.Identities {
		ir := &r.Identities[i]
		if ir.Status == "" {
			if ir.changed {
				ir.Status = StatusProvisioned
			} else {
				ir.Status = StatusAlreadyConverged
			}
		}
		if ir.Status.IsDegraded() || ir.Status == StatusPending {
			partial = true
		}
	}
	for _, c := range r.Checks {
		if !c.Passed {
			partial = true
		}
	}

	switch {
	case r.fatal != nil:
		r.Outcome = OutcomeFatal
		r.Error = r.fatal.Error()
	case partial:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Err returns the fatal error of the run, if any.
func (r *Report) Err() error {
	return r.fatal
}

// ExitCode maps the outcome to the CLI exit code.
func (r *Report) ExitCode() int {
	switch r.Outcome {
	case OutcomeFatal:
		return ExitFatal
	case OutcomePartial:
		return ExitPartial
	default:
		return ExitSuccess
	}
}

// Counts returns the number of identities per status.
func (r *Report) Counts() map[IdentityStatus]int {
	counts := map[IdentityStatus]int{}
	for _, ir := range r.Identities {
		counts[ir.Status]++
	}
	return counts
}

// Log prints a one-line summary per identity and the run outcome.
func (r *Report) Log() {
	for _, ir := range r.Identities {
		logger := log.ForIdentity(ir.Index)
		switch {
		case ir.Status.IsDegraded():
			logger.Warnf("%s (%s): %s", ir.Interface, ir.Status, ir.Error)
		case ir.Endpoint != "":
			logger.Infof("%s %s via %s: %s", ir.Interface, ir.Address, ir.Endpoint, ir.Status)
		default:
			logger.Infof("%s %s: %s", ir.Interface, ir.Address, ir.Status)
		}
	}

	if r.Proxy != nil {
		log.Infof("Proxy configuration %s: %s", r.Proxy.Path, r.Proxy.Status)
	}

	switch r.Outcome {
	case OutcomeFatal:
		log.Errorf("Run failed: %s", r.Error)
	case OutcomePartial:
		log.Warnf("Run finished with degraded identities (%d mutations)", r.Mutations)
	default:
		log.Infof("Run finished successfully (%d mutations)", r.Mutations)
	}
}
