package camera

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SimDevice is a synthetic camera backend. It paces frames at a fixed rate
// and renders a bright spot orbiting the image center, which is enough for
// exercising the pipeline and the preview without real hardware.
type SimDevice struct {
	width  int
	height int
	period time.Duration

	mu       sync.Mutex
	opened   bool
	exposure float64 // milliseconds
	gain     float64
	seq      uint64
	next     time.Time
}

// NewSimDevice creates a simulated device producing width x height frames
// at the given rate (frames per second).
func NewSimDevice(width, height int, rate float64) *SimDevice {
	if rate <= 0 {
		rate = 100
	}
	return &SimDevice{
		width:  width,
		height: height,
		period: time.Duration(float64(time.Second) / rate),
	}
}

// Open claims the simulated device
func (d *SimDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.width <= 0 || d.height <= 0 {
		return fmt.Errorf("%w: invalid frame size %dx%d", ErrDeviceOpen, d.width, d.height)
	}
	if d.opened {
		return fmt.Errorf("%w: already open", ErrDeviceOpen)
	}
	d.opened = true
	d.exposure = 1
	d.gain = 0
	d.seq = 0
	d.next = time.Now()
	return nil
}

// Close releases the simulated device
func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

// Grab blocks until the next frame deadline and synthesizes a frame
func (d *SimDevice) Grab() (*Frame, error) {
	d.mu.Lock()
	if !d.opened {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: device not open", ErrDeviceRead)
	}
	deadline := d.next
	d.next = deadline.Add(d.period)
	d.seq++
	seq := d.seq
	exposure := d.exposure
	gain := d.gain
	d.mu.Unlock()

	if wait := time.Until(deadline); wait > 0 {
		time.Sleep(wait)
	}

	return d.render(seq, exposure, gain), nil
}

// render draws the synthetic scene. Exposure scales the overall brightness,
// gain lifts the background floor, loosely mimicking a real sensor.
func (d *SimDevice) render(seq uint64, exposure, gain float64) *Frame {
	f := &Frame{
		Pix:       make([]byte, d.width*d.height),
		Width:     d.width,
		Height:    d.height,
		Seq:       seq,
		Timestamp: time.Now(),
	}

	brightness := exposure * 25
	if brightness > 255 {
		brightness = 255
	}
	floor := byte(math.Min(math.Max(gain, 0)*4, 64))

	angle := float64(seq) * 0.1
	cx := float64(d.width)/2 + math.Cos(angle)*float64(d.width)/4
	cy := float64(d.height)/2 + math.Sin(angle)*float64(d.height)/4
	radius := float64(d.width+d.height) / 40

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			v := floor
			dx := float64(x) - cx
			dy := float64(y) - cy
			if dist := math.Sqrt(dx*dx + dy*dy); dist < radius {
				v = byte(brightness * (1 - dist/radius))
				if v < floor {
					v = floor
				}
			}
			f.Pix[y*d.width+x] = v
		}
	}
	return f
}

// SetExposure sets the simulated exposure time in milliseconds
func (d *SimDevice) SetExposure(ms float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ms <= 0 {
		return fmt.Errorf("camera: exposure must be positive, got %v", ms)
	}
	d.exposure = ms
	return nil
}

// SetGain sets the simulated sensor gain
func (d *SimDevice) SetGain(gain float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = gain
	return nil
}

// Name returns the backend name
func (d *SimDevice) Name() string {
	return "sim"
}

// Exposure returns the currently applied exposure time in milliseconds
func (d *SimDevice) Exposure() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposure
}

// Gain returns the currently applied gain
func (d *SimDevice) Gain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}
