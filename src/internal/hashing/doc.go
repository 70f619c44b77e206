// Package hashing provides MD5 checksum helpers.
//
// The proxy generator compares the checksum of the rendered configuration
// with the checksum of the live file, and skips both the write and the proxy
// reload when they are equal.
//
//	live, exists, err := hashing.FileChecksum(path)
//	if exists && live == hashing.BytesChecksum(rendered) {
//	    return // unchanged
//	}
package hashing
