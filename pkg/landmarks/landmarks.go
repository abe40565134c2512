// Package landmarks computes eye and mouth metrics from 68-point facial landmarks.
//
// Points follow the standard 68-point indexing: 36-41 right eye, 42-47 left eye,
// 48-67 mouth.
package landmarks

import (
	"errors"
	"fmt"
	"math"
)

// ShapeSize is the number of points in a full facial landmark shape.
const ShapeSize = 68

// Index ranges within a Shape.
const (
	rightEyeStart = 36
	leftEyeStart  = 42
	mouthStart    = 48
	eyePoints     = 6
	mouthPoints   = 20
)

// ErrShapeSize is returned when a shape does not hold exactly ShapeSize points.
var ErrShapeSize = errors.New("landmarks: shape must have 68 points")

// Point is a 2D landmark position in pixel space.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Shape is an ordered set of landmark points for one face.
type Shape []Point

// RightEye returns the six right-eye points.
func (s Shape) RightEye() []Point {
	return s[rightEyeStart : rightEyeStart+eyePoints]
}

// LeftEye returns the six left-eye points.
func (s Shape) LeftEye() []Point {
	return s[leftEyeStart : leftEyeStart+eyePoints]
}

// Mouth returns the twenty mouth points (outer then inner lip).
func (s Shape) Mouth() []Point {
	return s[mouthStart : mouthStart+mouthPoints]
}

// Reading is the per-frame output of Extract.
type Reading struct {
	// EAR is the mean eye aspect ratio of both eyes.
	EAR float64

	// Yawn is the raw pixel distance between the approximate inner lips.
	// It is not normalized for face size or camera distance.
	Yawn float64
}

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2 |p1-p4|) for six eye points.
// A degenerate eye with zero width yields 0.
func EyeAspectRatio(eye []Point) float64 {
	width := Dist(eye[0], eye[3])
	if width == 0 {
		return 0
	}
	a := Dist(eye[1], eye[5])
	b := Dist(eye[2], eye[4])
	return (a + b) / (2.0 * width)
}

// MouthOpening returns the distance between mean(mouth[2:4]) and mean(mouth[8:10]).
// The offsets are empirical and intentionally kept as is.
func MouthOpening(mouth []Point) float64 {
	top := mean(mouth[2:4])
	bottom := mean(mouth[8:10])
	return Dist(top, bottom)
}

// Extract computes the EAR and mouth opening of a full shape.
func Extract(s Shape) (Reading, error) {
	if len(s) != ShapeSize {
		return Reading{}, fmt.Errorf("%w: got %d", ErrShapeSize, len(s))
	}

	left := EyeAspectRatio(s.LeftEye())
	right := EyeAspectRatio(s.RightEye())

	return Reading{
		EAR:  (left + right) / 2.0,
		Yawn: MouthOpening(s.Mouth()),
	}, nil
}

func mean(pts []Point) Point {
	var sum Point
	for _, p := range pts {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(pts))
	return Point{X: sum.X / n, Y: sum.Y / n}
}
