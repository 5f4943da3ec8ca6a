package preview

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"

	"github.com/openbehavior/trackpipe/internal/camera"
	"github.com/openbehavior/trackpipe/internal/pipeline"
)

func grayFrame(w, h int, seq uint64) *camera.Frame {
	f := &camera.Frame{
		Pix:       make([]byte, w*h),
		Width:     w,
		Height:    h,
		Seq:       seq,
		Timestamp: time.Now(),
	}
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	return f
}

// TestMJPEGConsumeAndSnapshot verifies frames flow through Consume and come
// out as decodable JPEG.
func TestMJPEGConsumeAndSnapshot(t *testing.T) {
	m := NewMJPEG(0, 80)
	frames := make(chan *camera.Frame, 1)
	stop := pipeline.NewSignal()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Consume(frames, stop)
	}()

	frames <- grayFrame(8, 8, 1)

	deadline := time.After(1 * time.Second)
	for m.Snapshot() == nil {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for encoded frame")
		case <-time.After(5 * time.Millisecond):
		}
	}

	img, err := jpeg.Decode(bytes.NewReader(m.Snapshot()))
	if err != nil {
		t.Fatalf("Snapshot is not valid JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("Expected 8x8 image, got %v", b)
	}

	stop.Set()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Consume did not exit after stop")
	}
}

// TestMJPEGScalesToPreviewWidth verifies frames wider than the preview width
// are scaled down, keeping aspect ratio.
func TestMJPEGScalesToPreviewWidth(t *testing.T) {
	m := NewMJPEG(4, 80)

	data, err := m.encode(grayFrame(8, 8, 1))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("encode produced invalid JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("Expected 4x4 scaled image, got %v", b)
	}
}

// TestMJPEGSlowSubscriberSkipsFrames verifies publishing never blocks on a
// full client channel.
func TestMJPEGSlowSubscriberSkipsFrames(t *testing.T) {
	m := NewMJPEG(0, 80)

	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			m.publish([]byte{byte(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The client buffer holds the first frames; later ones were skipped.
	if len(ch) == 0 {
		t.Error("Subscriber received nothing")
	}
}
