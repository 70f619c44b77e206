// Package commands implements the hairpin CLI subcommands.
//
// Each command implements the Runner interface: Init parses its flags and
// loads the configuration, Run executes the command through the service
// layer. Mutating commands (provision, route, apply, teardown) hold the host
// run lock for their whole duration.
//
// Run returns an *ExitError when the process must exit with a code other
// than the generic failure code, for example 3 when one or more identities
// are degraded.
package commands
