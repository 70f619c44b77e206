// Package service provides the orchestration layer of hairpin.
//
// The service layer sits between the commands (CLI and HTTP API) and the
// domain managers. It runs the two entry points of a run, provisioning and
// routing, and aggregates the tagged per-identity results into a Report
// without stopping at the first failing identity.
//
// # Example Usage
//
//	deps, err := domain.NewAppDependencies(cfg)
//	if err != nil {
//	    return err
//	}
//	svc := service.NewRoutingService(deps, service.NewValidationService())
//
//	report := svc.Apply(ctx)
//	report.Log()
//	os.Exit(report.ExitCode())
package service
