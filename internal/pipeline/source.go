package pipeline

import (
	"fmt"

	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/control"
	"github.com/openbehavior/trackpipe/internal/logger"
)

// Source is the acquisition worker. It owns the device handle, pulls frames
// as fast as the device delivers them and pushes them onto the frame queue,
// applying any pending parameter update between grabs.
type Source struct {
	dev      camera.Device
	controls *control.Mailbox
	out      chan<- *camera.Frame
	stop     *Signal
	seq      uint64
}

// NewSource creates an acquisition worker. controls may be nil when no
// runtime reconfiguration is needed.
func NewSource(dev camera.Device, controls *control.Mailbox, out chan<- *camera.Frame, stop *Signal) *Source {
	return &Source{
		dev:      dev,
		controls: controls,
		out:      out,
		stop:     stop,
	}
}

// Run opens the device and captures until the termination signal is set or
// the device fails. Open and read failures are fatal: there is no retry, the
// error is returned to the hosting process. The device is released on every
// exit path.
func (s *Source) Run() error {
	log := logger.WithComponent("source")

	if err := s.dev.Open(); err != nil {
		return fmt.Errorf("open device %q: %w", s.dev.Name(), err)
	}
	defer s.dev.Close()

	log.Info().Str("device", s.dev.Name()).Msg("Acquisition started")

	for {
		s.applyPendingControls()

		// Capture must stop before emitting another frame.
		if s.stop.IsSet() {
			log.Info().Uint64("frames", s.seq).Msg("Acquisition stopped")
			return nil
		}

		frame, err := s.dev.Grab()
		if err != nil {
			return fmt.Errorf("read frame %d from %q: %w", s.seq+1, s.dev.Name(), err)
		}
		s.seq++
		frame.Seq = s.seq

		// Blocking push: a full queue throttles acquisition to the
		// dispatcher's true processing rate rather than dropping frames.
		select {
		case s.out <- frame:
		case <-s.stop.Done():
			log.Info().Uint64("frames", s.seq).Msg("Acquisition stopped")
			return nil
		}
	}
}

// applyPendingControls consumes at most one parameter update and applies
// each present field to the device. Fields are applied independently and
// best-effort; a failed field is logged and does not undo the others.
func (s *Source) applyPendingControls() {
	if s.controls == nil {
		return
	}
	u, ok := s.controls.TryReceive()
	if !ok {
		return
	}

	log := logger.WithComponent("source")
	if u.Exposure != nil {
		// Exposure arrives in seconds, the device wants milliseconds.
		ms := *u.Exposure * 1000
		if err := s.dev.SetExposure(ms); err != nil {
			log.Warn().Err(err).Float64("exposure_ms", ms).Msg("Failed to set exposure")
		} else {
			log.Debug().Float64("exposure_ms", ms).Msg("Exposure updated")
		}
	}
	if u.Gain != nil {
		if err := s.dev.SetGain(*u.Gain); err != nil {
			log.Warn().Err(err).Float64("gain", *u.Gain).Msg("Failed to set gain")
		} else {
			log.Debug().Float64("gain", *u.Gain).Msg("Gain updated")
		}
	}
}
