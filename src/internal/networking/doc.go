// Package networking manages the kernel state behind hairpin identities.
//
// All kernel access goes through Handle, the subset of *netlink.Handle that
// hairpin needs, so the whole package runs against an in-memory kernel in
// tests. Wrapping a Handle in CountingHandle counts mutations; a converged
// host yields zero.
//
// # Components
//
// Every piece of desired state is a NetworkingComponent that can be observed
// (IsExists, Conflict), created and deleted:
//
//   - LocalRuleComponent: "from all lookup local" moved from priority 0 to
//     routing.local_priority (LocalRuleAdjuster)
//   - SelectorComponent: "from <address>/32 lookup <table>" per identity
//   - RouteComponent: the subnet route and optional default route inside the
//     identity table
//   - IPTablesRuleComponent: proxy port guard rules
//
// # Hairpin engine
//
// HairpinEngine converges one identity through
// Unconfigured -> SelectorInstalled -> RouteInstalled -> Converged.
// Conflicts are detected before the first mutation and are never overwritten:
//
//	mgr, _ := networking.NewManager(handle, cfg, ipt)
//	if _, err := mgr.AdjustLocalRule(); err != nil {
//	    return err
//	}
//	for _, r := range mgr.InstallRouting(targets) {
//	    fmt.Println(r.Index, r.State, r.Err)
//	}
package networking
