// Package vision defines the face detection and swap capabilities the
// pipeline consumes, plus their ONNX Runtime implementations.
package vision

import (
	"image"
)

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect converts the box to an image.Rectangle clamped to bounds.
func (b BoundingBox) Rect(bounds image.Rectangle) image.Rectangle {
	r := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
	return r.Intersect(bounds)
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point
	RightEye   Point
	Nose       Point
	LeftMouth  Point
	RightMouth Point
}

// Face is one detected face candidate.
type Face struct {
	Box       BoundingBox
	Score     float32
	Landmarks Landmarks
}

// RelativeArea reports the face box area as a fraction of the image area.
func (f Face) RelativeArea(bounds image.Rectangle) float64 {
	imgArea := float64(bounds.Dx()) * float64(bounds.Dy())
	if imgArea <= 0 {
		return 0
	}
	return float64(f.Box.Area()) / imgArea
}

// Embedding is a face identity vector produced by the detection capability.
type Embedding [512]float32

// Detector produces candidate face regions from a decoded image.
type Detector interface {
	Detect(img *image.NRGBA) ([]Face, error)
	Embed(img *image.NRGBA, face Face) (*Embedding, error)
	Close() error
}

// Swapper substitutes the region of one detected face with the reference
// identity, writing into dst in place.
type Swapper interface {
	Swap(dst *image.NRGBA, target Face, source *Embedding) error
	Close() error
}
