// Package model defines the records exchanged with the relay and persisted by the
// host store: contacts, presences, relationships, group membership, keys, messages
// and deliveries.
//
// Contact is a closed set of variants. Self, peer and group specific fields live
// in SelfDetails, PeerDetails and GroupDetails; a Contact holds exactly one of them.
// Code that needs variant fields either uses the comma-ok accessors:
//
//	if peer, ok := contact.AsPeer(); ok {
//	    fmt.Println(peer.Presence.ClientName)
//	}
//
// or, where the variant is an invariant of the call site, the Must accessors,
// which panic on the wrong variant instead of returning nil.
package model
