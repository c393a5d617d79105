// Package store defines the persistence collaborator of the client engine and
// an in-memory implementation.
//
// The engine only ever uses typed load and save operations. Implementations
// return copies so callers can mutate loaded records freely and persist them
// with a Save call. Lookups that find nothing return ErrNotFound.
//
// The sqlite subpackage provides a durable implementation.
package store
