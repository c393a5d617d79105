// Package executor provides the single serial work queue that every state
// change of a client runs on.
//
// Work submitted with Execute runs in submission order, one item at a time.
// Delayed work submitted with Schedule is enqueued on the same queue when its
// delay elapses, so delayed callbacks never run concurrently with other work.
//
// Serial runs the queue on a dedicated goroutine and is used in production.
// Manual runs nothing until RunPending or Advance is called and keeps its own
// virtual time, which makes state machine tests deterministic:
//
//	exec := executor.NewManual()
//	exec.Schedule(5*time.Second, fire)
//	exec.Advance(5 * time.Second) // fire has now run
package executor
