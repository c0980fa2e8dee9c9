package pipeline

import (
	"context"
	"sync"
)

// Run is a handle to an in-flight generation job. Events are delivered on a
// buffered channel that the orchestrator never drops from; consumers either
// range over Events or poll with Poll and flush after Done.
type Run struct {
	jobID  string
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	questions []Question
	err       error
}

func newRun(jobID string, cancel context.CancelFunc, buffer int) *Run {
	return &Run{
		jobID:  jobID,
		events: make(chan Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// JobID returns the job identifier.
func (r *Run) JobID() string { return r.jobID }

// Events returns the event stream. The channel is closed when the job
// finishes; the final event before close is done or a terminal error.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed when the job has finished and all events are enqueued.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops the job. In-flight agent calls are interrupted through their
// context; the stream ends with a terminal error event.
func (r *Run) Cancel() { r.cancel() }

// Poll drains currently queued events without blocking. After Done is
// closed one final Poll returns every remaining event.
func (r *Run) Poll() []Event {
	var drained []Event
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return drained
			}
			drained = append(drained, ev)
		default:
			return drained
		}
	}
}

// Wait blocks until the job finishes, discarding events, and returns the
// accepted questions. An empty slice with nil error means the attempt
// budget ran out before the requested count was reached.
func (r *Run) Wait() ([]Question, error) {
	for range r.events {
	}
	<-r.done
	return r.Questions()
}

// Questions returns the accepted questions and terminal error once the job
// has finished.
func (r *Run) Questions() ([]Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.questions, r.err
}

func (r *Run) finish(questions []Question, err error) {
	r.mu.Lock()
	r.questions = questions
	r.err = err
	r.mu.Unlock()
	close(r.events)
	close(r.done)
}
