// Package identity creates, discovers and destroys the pool of simulated
// client identities: one macvlan child of the uplink per identity, each with
// its own leased LAN address.
package identity
