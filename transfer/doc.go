// Package transfer moves encrypted attachment blobs between local files and
// relay storage.
//
// The [Agent] is the entry point used by the messaging layer. Uploads and
// downloads are registered with it, recorded in a [Registry] and executed one
// at a time on the agent's own executor, so a slow transfer never blocks
// protocol processing. The bytes themselves are moved by a [Mover]; the
// default [HTTPMover] encrypts uploads with the message's content key and
// decrypts downloads with it.
//
// Transfers progress through these states:
//
//	Pending -> Running -> Complete
//	   |          |
//	   |          +-----> Failed
//	   v          v
//	Cancelled <---+
//
// Listeners registered with [Registry.AddListener] observe every transition.
package transfer
