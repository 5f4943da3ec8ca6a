// Package pipeline implements the two-stage acquisition pipeline: a frame
// source worker capturing from the camera device and a dispatcher worker
// processing and routing frames. The two run concurrently and share only
// the frame queue and the termination signal.
package pipeline

import (
	"sync"

	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/control"
)

// Options configures a Pipeline.
type Options struct {
	// QueueCapacity bounds the frame queue between source and dispatcher.
	// A full queue blocks the source, throttling acquisition. Default 64.
	QueueCapacity int

	// Dispatcher carries the dispatch-stage configuration.
	Dispatcher DispatcherOptions
}

// Pipeline owns the frame queue and the two workers.
type Pipeline struct {
	source     *Source
	dispatcher *Dispatcher
	frames     chan *camera.Frame
	stop       *Signal
}

// New wires a pipeline from a device to a display sink. controls may be nil.
func New(dev camera.Device, controls *control.Mailbox, display chan<- *camera.Frame, stop *Signal, opts Options) *Pipeline {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	frames := make(chan *camera.Frame, opts.QueueCapacity)
	return &Pipeline{
		source:     NewSource(dev, controls, frames, stop),
		dispatcher: NewDispatcher(frames, display, stop, opts.Dispatcher),
		frames:     frames,
		stop:       stop,
	}
}

// Dispatcher exposes the dispatch stage, mainly for stats.
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Run starts both workers and blocks until both have exited. It returns the
// first fatal error, or nil for a clean shutdown (termination signal or
// end-of-stream).
//
// Failure flow follows the worker coupling: a dead source closes the frame
// queue, which the dispatcher drains and then exits; any dispatcher exit,
// clean end-of-stream included, raises the termination signal so the source
// stops within one grab instead of filling the queue.
func (p *Pipeline) Run() error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(p.frames)
		if err := p.source.Run(); err != nil {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// However dispatch ends, the source must not keep capturing.
		defer p.stop.Set()
		if err := p.dispatcher.Run(); err != nil {
			errs <- err
		}
	}()

	wg.Wait()
	close(errs)
	return <-errs
}

// Stop raises the termination signal. Idempotent.
func (p *Pipeline) Stop() {
	p.stop.Set()
}
