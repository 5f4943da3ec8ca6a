package camera

import "errors"

var (
	// ErrDeviceOpen indicates the camera device could not be opened.
	// This is not recoverable within the pipeline; a missing sensor is an
	// operator problem.
	ErrDeviceOpen = errors.New("camera: device open failed")

	// ErrDeviceRead indicates a frame read from an opened device failed.
	ErrDeviceRead = errors.New("camera: device read failed")
)

// Device defines the interface for camera backends
type Device interface {
	// Open claims the device and begins acquisition
	Open() error

	// Close stops acquisition and releases the device
	Close() error

	// Grab blocks until the next frame is available and returns it
	Grab() (*Frame, error)

	// SetExposure sets the exposure time in device units (milliseconds)
	SetExposure(ms float64) error

	// SetGain sets the sensor gain in device-native units
	SetGain(gain float64) error

	// Name returns a human-readable name for this device
	Name() string
}
