// Package thread provides the synchronization primitives used by the scene
// producer and the warp consumer.
//
// The primitives mirror the small threading kit a native ATW test needs:
//
//   - Mutex: a recursive mutex with a non-blocking TryLock
//   - Signal: an auto-reset or manual-reset event with indefinite, timed or
//     context-bound waits
//   - Worker: a goroutine locked to an OS thread that runs a submitted
//     function and returns to a suspended state
//
// Thread safety: all types are safe for concurrent use.
package thread
