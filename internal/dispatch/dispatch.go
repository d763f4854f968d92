package dispatch

import "context"

// Task is one independent unit of background work. Run is retried per the
// dispatcher's backoff schedule; after the final attempt fails,
// OnPermanentFailure (if set) runs once with the last error.
type Task struct {
	Name               string
	Run                func(ctx context.Context) error
	OnPermanentFailure func(err error)
}

// Dispatcher executes tasks outside the request path.
type Dispatcher interface {
	// Enqueue schedules the task. It reports an error only when the
	// dispatcher is shut down or its queue is full.
	Enqueue(task Task) error
}
