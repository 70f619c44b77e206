// Package proxy generates the forward-proxy binding table: one listener per
// identity whose outgoing connections use that identity's address.
//
// The generated file is replaced atomically and only when its content
// changes, after which the proxy is asked to reload.
package proxy
