// Package group maintains the symmetric keys of group conversations.
//
// # Overview
//
// Every group has one AES key shared by its joined members. The relay never
// sees it: the admin wraps the key individually with each member's RSA public
// key and uploads the wrapped copies with updateGroupKey. Members recover the
// key from their own member record with DecryptForSelf.
//
// # Renewal
//
// An admin renews the key when it observes one of:
//
//   - a joined member with no wrapped key on file
//   - a member that has just joined
//   - a member whose wrapped key references a key id other than its current one
//
// A joined member first seen during a full sync that already holds a key
// only counts when that key is stale. ShouldRenew evaluates these triggers
// for one member update. ScheduleRenewal
// coalesces triggers per group and runs Renew on the serial executor, so at
// most one renewal per group is pending or running at a time:
//
//	if reason := km.ShouldRenew(ctx, selfID, groupContact, previous, member); reason != "" {
//	    km.ScheduleRenewal(groupID, reason)
//	}
//
// Members without a known public key are skipped and logged; the next
// membership update retriggers renewal for them.
//
// # Keyring
//
// Keyring resolves public keys of clients (fetching them with getKey when the
// presence advertises a key id that is not yet stored) and private keys of the
// local identity by key id. The messaging package uses it as well.
package group
