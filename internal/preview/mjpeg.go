// Package preview streams the decimated display-path frames as Motion JPEG
// over HTTP, so any browser works as the rate-limited preview consumer.
package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/logger"
	"github.com/openbehavior/trackpipe/internal/pipeline"
)

// MJPEG consumes the display sink and fans encoded frames out to any number
// of HTTP clients. Slow clients skip frames rather than backing up the sink.
type MJPEG struct {
	width   int
	quality int

	frameMu    sync.RWMutex
	current    []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
}

// NewMJPEG creates a preview output. Frames are scaled to width before
// encoding (0 keeps the native size); quality is the JPEG quality, 1-100.
func NewMJPEG(width, quality int) *MJPEG {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &MJPEG{
		width:   width,
		quality: quality,
		clients: make(map[chan []byte]struct{}),
	}
}

// Consume drains the display sink until it is closed or the termination
// signal is set. Run this in its own goroutine.
func (m *MJPEG) Consume(frames <-chan *camera.Frame, stop *pipeline.Signal) {
	log := logger.WithComponent("preview")
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				log.Info().Uint64("frames", m.frameCount).Msg("Preview stream ended")
				return
			}
			data, err := m.encode(frame)
			if err != nil {
				log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("Failed to encode preview frame")
				continue
			}
			m.publish(data)
		case <-stop.Done():
			log.Info().Uint64("frames", m.frameCount).Msg("Preview stopped")
			return
		}
	}
}

// encode scales the frame to the preview width and JPEG-encodes it.
func (m *MJPEG) encode(frame *camera.Frame) ([]byte, error) {
	var img image.Image = frame.Gray()

	if m.width > 0 && frame.Width > m.width {
		h := frame.Height * m.width / frame.Width
		scaled := image.NewGray(image.Rect(0, 0, m.width, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		img = scaled
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// publish stores the latest frame and broadcasts it to connected clients.
func (m *MJPEG) publish(data []byte) {
	m.frameMu.Lock()
	m.current = data
	m.lastUpdate = time.Now()
	m.frameCount++
	m.frameMu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()
}

// Subscribe registers a client channel for encoded frames. Call the returned
// function to unsubscribe.
func (m *MJPEG) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 2)
	m.clientsMu.Lock()
	m.clients[ch] = struct{}{}
	m.clientsMu.Unlock()

	return ch, func() {
		m.clientsMu.Lock()
		delete(m.clients, ch)
		m.clientsMu.Unlock()
	}
}

// Snapshot returns the most recent encoded frame, or nil if none yet.
func (m *MJPEG) Snapshot() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.current
}

// Handler returns an http.HandlerFunc serving the multipart MJPEG stream.
func (m *MJPEG) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Connection", "close")

		frames, unsubscribe := m.Subscribe()
		defer unsubscribe()

		log := logger.WithComponent("preview")
		log.Info().Str("remote", r.RemoteAddr).Msg("Preview client connected")
		defer log.Info().Str("remote", r.RemoteAddr).Msg("Preview client disconnected")

		for {
			select {
			case data := <-frames:
				if err := writePart(w, data); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
