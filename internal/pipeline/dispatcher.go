package pipeline

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/logger"
)

// ProcessFunc is the pluggable per-frame processing stage. It must not
// retain the frame beyond the call.
type ProcessFunc func(*camera.Frame) (any, error)

// DispatcherOptions configures the optional parts of a Dispatcher.
// Zero values select the defaults.
type DispatcherOptions struct {
	// Process is invoked synchronously on every frame. Optional.
	Process ProcessFunc

	// Output receives the processing results. Optional; without it results
	// are discarded but the display bookkeeping is unchanged.
	Output chan<- any

	// TargetDisplayRate is the desired preview rate in frames per second.
	// Default 30.
	TargetDisplayRate float64

	// ExpectedRate is the configured camera rate in frames per second, used
	// to seed the decimation stride before the first throughput window
	// completes. Zero means no expectation: every frame is shown until the
	// first measurement lands.
	ExpectedRate float64

	// ReadTimeout bounds the wait for the next frame. Expiry is treated as
	// end-of-stream: the producer is presumed gone. Default 5s.
	ReadTimeout time.Duration

	// FPSWindow is the number of frames per throughput-measurement window.
	// The decimation stride is only recomputed at window boundaries, a
	// deliberate smoothing choice. Default 10.
	FPSWindow int

	// DisplayWait bounds the wait on a full display sink before the preview
	// frame is dropped. The processing path is never affected. Default 100ms.
	DisplayWait time.Duration
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	FramesDisplayed uint64  `json:"frames_displayed"`
	PreviewDrops    uint64  `json:"preview_drops"`
	MeasuredRate    float64 `json:"measured_fps"`
	DisplayStride   int     `json:"display_stride"`
}

// Dispatcher drains the frame queue, runs the processing function on every
// frame, and forwards an adaptively decimated subset to the display sink.
type Dispatcher struct {
	in      <-chan *camera.Frame
	display chan<- *camera.Frame
	stop    *Signal
	opts    DispatcherOptions

	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewDispatcher creates a dispatcher reading from in and writing decimated
// frames to display. Both channels are required; everything else comes from
// opts.
func NewDispatcher(in <-chan *camera.Frame, display chan<- *camera.Frame, stop *Signal, opts DispatcherOptions) *Dispatcher {
	if opts.TargetDisplayRate <= 0 {
		opts.TargetDisplayRate = 30
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.FPSWindow <= 0 {
		opts.FPSWindow = 10
	}
	if opts.DisplayWait <= 0 {
		opts.DisplayWait = 100 * time.Millisecond
	}
	return &Dispatcher{
		in:      in,
		display: display,
		stop:    stop,
		opts:    opts,
		now:     time.Now,
		stats:   Stats{DisplayStride: strideFor(opts.ExpectedRate, opts.TargetDisplayRate)},
	}
}

// Run consumes frames until the termination signal is set, the queue stays
// empty past ReadTimeout (clean end-of-stream), or the processing function
// fails (fatal, propagated). The processing path never skips a frame; only
// the display path is decimated.
func (d *Dispatcher) Run() error {
	log := logger.WithComponent("dispatcher")

	timer := time.NewTimer(d.opts.ReadTimeout)
	defer timer.Stop()

	// The throughput window and the decimation phase are independent
	// counters on different periods.
	windowStart := d.now()
	windowPhase := 0
	displayPhase := 0
	stride := strideFor(d.opts.ExpectedRate, d.opts.TargetDisplayRate)

	for {
		if d.stop.IsSet() {
			log.Info().Msg("Dispatcher stopped")
			return nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.opts.ReadTimeout)

		var frame *camera.Frame
		select {
		case f, ok := <-d.in:
			if !ok {
				log.Info().Msg("Frame queue closed, dispatcher exiting")
				return nil
			}
			frame = f
		case <-timer.C:
			log.Info().
				Dur("timeout", d.opts.ReadTimeout).
				Msg("Frame queue starved, treating as end of stream")
			return nil
		case <-d.stop.Done():
			log.Info().Msg("Dispatcher stopped")
			return nil
		}

		if d.opts.Process != nil {
			result, err := d.opts.Process(frame)
			if err != nil {
				return fmt.Errorf("process frame %d: %w", frame.Seq, err)
			}
			if d.opts.Output != nil {
				select {
				case d.opts.Output <- result:
				case <-d.stop.Done():
					log.Info().Msg("Dispatcher stopped")
					return nil
				}
			}
		}

		if windowPhase == d.opts.FPSWindow-1 {
			now := d.now()
			if elapsed := now.Sub(windowStart).Seconds(); elapsed > 0 {
				rate := float64(d.opts.FPSWindow) / elapsed
				stride = strideFor(rate, d.opts.TargetDisplayRate)
				d.mu.Lock()
				d.stats.MeasuredRate = rate
				d.stats.DisplayStride = stride
				d.mu.Unlock()
				log.Debug().
					Float64("fps", rate).
					Int("stride", stride).
					Msg("Throughput window complete")
			}
			windowStart = now
		}
		windowPhase = (windowPhase + 1) % d.opts.FPSWindow

		if displayPhase == 0 {
			d.emitDisplay(frame, log)
		}
		displayPhase = (displayPhase + 1) % stride

		d.mu.Lock()
		d.stats.FramesProcessed++
		d.mu.Unlock()
	}
}

// emitDisplay forwards a transposed copy of the frame to the display sink
// with a bounded wait. A slow preview consumer costs preview frames only.
func (d *Dispatcher) emitDisplay(frame *camera.Frame, log *zerolog.Logger) {
	select {
	case d.display <- frame.Transposed():
		d.mu.Lock()
		d.stats.FramesDisplayed++
		d.mu.Unlock()
	case <-time.After(d.opts.DisplayWait):
		d.mu.Lock()
		d.stats.PreviewDrops++
		d.mu.Unlock()
		log.Debug().Uint64("seq", frame.Seq).Msg("Display sink full, preview frame dropped")
	case <-d.stop.Done():
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// strideFor derives the keep-1-in-N display decimation from the measured
// producer rate and the target display rate. Never below 1.
func strideFor(rate, target float64) int {
	if target <= 0 {
		return 1
	}
	stride := int(math.Round(rate / target))
	if stride < 1 {
		return 1
	}
	return stride
}
