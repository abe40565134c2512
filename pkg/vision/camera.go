package vision

import (
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// Requested capture resolution.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Camera is an opened capture device or video file.
type Camera struct {
	source string
	vc     *gocv.VideoCapture
}

// OpenCamera opens source: a device index such as "0", or a file or stream
// URL. Failure wraps ErrCameraUnavailable and is not retried.
func OpenCamera(source string) (*Camera, error) {
	var dev any = source
	if idx, err := strconv.Atoi(source); err == nil {
		dev = idx
	}

	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraUnavailable, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, source)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, FrameWidth)
	vc.Set(gocv.VideoCaptureFrameHeight, FrameHeight)

	return &Camera{source: source, vc: vc}, nil
}

// Read grabs the next frame into img. It returns ErrEndOfStream when the
// source is exhausted or stops delivering frames.
func (c *Camera) Read(img *gocv.Mat) error {
	if ok := c.vc.Read(img); !ok || img.Empty() {
		return ErrEndOfStream
	}
	return nil
}

// Source returns what the camera was opened with.
func (c *Camera) Source() string {
	return c.source
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.vc.Close()
}
