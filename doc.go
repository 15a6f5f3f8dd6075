// Package asyncrt implements a minimal async runtime: a cooperative task
// executor, a timer driver, and an edge-triggered network reactor, composed so
// that tasks suspend on timers and socket readiness without blocking the
// goroutines that drive them.
//
// Tasks are [Future] values, polled by a scheduler until they complete. A
// future that cannot make progress registers the [Waker] from its [Context]
// with whatever it is waiting on, and returns pending. The waker re-queues the
// task, which is the only way it will be polled again.
//
// Two schedulers are available, selected at construction:
//
//   - [NewCurrentThread] runs tasks on the goroutine calling [BlockOn]
//   - [NewMultiThread] runs tasks on a fixed pool of worker goroutines
//
// Within [BlockOn], and on worker goroutines, the runtime is installed as the
// ambient runtime of the goroutine, which is used by [Spawn], [Sleep] and
// [Bind].
//
// # Example
//
//	rt, err := asyncrt.NewCurrentThread()
//	if err != nil {
//		panic(err)
//	}
//	defer rt.Close()
//
//	v, err := asyncrt.BlockOn(rt, asyncrt.Then(
//		asyncrt.Sleep(10*time.Millisecond),
//		func(struct{}) asyncrt.Future[int] { return asyncrt.Value(42) },
//	))
package asyncrt
