// Package cipherkey decides under which (sender, destination) pair a
// symmetric message key is cached, and keeps those keys.
package cipherkey

import "dim_chat/internal/protocol/identity"

// Destination returns the identifier a message key is cached under. All
// members of one group share the group key, broadcast traffic never shares a
// slot with encrypted traffic.
func Destination(receiver, group *identity.ID) *identity.ID {
	if group == nil && receiver.IsGroup() {
		// a group message not yet split
		group = receiver
	}
	switch {
	case group == nil:
		return receiver
	case group.IsBroadcast():
		return group
	case receiver.IsBroadcast():
		// a broadcast command inside a real group
		return receiver
	default:
		return group
	}
}
