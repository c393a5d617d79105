// Package contactsync folds relay presence, relationship, group and group
// member records into local contacts.
//
// The same entry points serve push notifications and the full resync run on
// every login: Sync publishes the local key and presence, then fetches every
// list since [model.Epoch] and applies each record exactly as if it had been
// pushed. Sync is best effort. A failed fetch is logged and the remaining
// lists are still processed; the combined error is returned for logging only.
//
// Records are merged field by field. Relationship updates are applied in
// arrival order; an update older than the stored one is logged at warn level
// and still applied.
//
// Group member updates for the local identity decrypt the wrapped group key.
// When the local identity administers the group, member updates may schedule
// a key renewal through [group.KeyManager].
package contactsync
