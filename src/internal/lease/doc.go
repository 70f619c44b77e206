// Package lease acquires one LAN address per identity interface through an
// external lease client (dhclient, udhcpc).
//
// The lease client is started with a rendered command line and the interface
// is polled until an address inside the LAN subnet appears, or the context
// deadline expires.
package lease
