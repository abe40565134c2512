package vision

import (
	"bytes"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drivemind/pkg/perception"
)

// BlurKernel is the Gaussian kernel side used to anonymize faces.
const BlurKernel = 31

// BlurFaces blurs every face region of img in place.
func BlurFaces(img *gocv.Mat, faces []perception.Box) {
	for _, f := range faces {
		rect := faceRect(f, img.Cols(), img.Rows())
		if rect.Empty() {
			continue
		}
		region := img.Region(rect)
		gocv.GaussianBlur(region, &region, image.Pt(BlurKernel, BlurKernel), 0, 0, gocv.BorderDefault)
		region.Close()
	}
}

// EncodeJPEG encodes img for the dashboard preview.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
