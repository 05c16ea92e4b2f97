// Package event provides a pub-sub event bus that lets observers follow the
// trial protocol without coupling to it.
//
// The coordinator and peer state machines publish an [Event] at every phase
// change, completed round and committed trial. The CLI logs
// phase changes from the bus, and tests subscribe to the types they assert
// on.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics: a
// panicking handler will not prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeRoundCompleted, func(e event.Event) {
//	    done := e.(event.RoundCompletedEvent)
//	    fmt.Printf("trial %d round %d: %s\n", done.Trial, done.Round, done.Decision)
//	})
//
//	// Typed subscription
//	event.SubscribeTo(bus, func(e event.TrialCommittedEvent) { ... })
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - peer.ready
//   - phase.changed
//   - round.completed
//   - trial.committed
//   - experiment.finished
package event
