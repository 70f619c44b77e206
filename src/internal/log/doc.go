// Package log provides simple leveled logging for hairpin.
//
// This package implements a lightweight logging system with colored output
// and support for different log levels: DEBUG, INFO, WARN, and ERROR.
// It provides global logging functions that can be used throughout the application.
//
// # Log Levels
//
//   - DEBUG: Detailed diagnostic information (only shown in verbose mode)
//   - INFO: General informational messages
//   - WARN: Warning messages, e.g. an identity that could not be converged
//   - ERROR: Error messages for failures
//
// # Example Usage
//
//	log.Infof("Provisioning %d identities on %s", n, uplink)
//	log.ForIdentity(3).Warnf("lease timed out after %v", timeout)
//
// Commands that write machine-readable output to stdout call
// SetForceStdErr(true) so log lines never mix with it.
//
// All functions are safe for concurrent use; identities are provisioned in
// parallel and log through the same writers.
package log
