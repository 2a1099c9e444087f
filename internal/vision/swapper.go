package vision

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

const swapInputSize = 128

// ONNXSwapper implements Swapper with an inswapper-style generator model:
// a 128x128 target crop plus a source identity embedding produce the
// substituted face region.
type ONNXSwapper struct {
	session *Session
	feather int // blend border width in pixels, relative to the 128 crop
}

// NewONNXSwapper creates the swap capability from a model file.
func NewONNXSwapper(modelPath string) (*ONNXSwapper, error) {
	session, err := NewSession(
		modelPath,
		[]string{"target", "source"},
		[]string{"output"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create swap session: %w", err)
	}

	return &ONNXSwapper{session: session, feather: 12}, nil
}

// Swap replaces the target face region in dst with the generated face.
func (s *ONNXSwapper) Swap(dst *image.NRGBA, target Face, source *Embedding) error {
	region := target.Box.Rect(dst.Bounds())
	if region.Empty() {
		return fmt.Errorf("face box outside image bounds")
	}

	crop := imaging.Crop(dst, region)
	aligned := imaging.Resize(crop, swapInputSize, swapInputSize, imaging.Linear)

	targetTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, swapInputSize, swapInputSize),
		toCHW(aligned, swapInputSize, 127.5, 127.5),
	)
	if err != nil {
		return err
	}
	defer targetTensor.Destroy()

	latent := l2Normalize(source)
	sourceTensor, err := ort.NewTensor(ort.NewShape(1, 512), latent)
	if err != nil {
		return err
	}
	defer sourceTensor.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, swapInputSize, swapInputSize))
	if err != nil {
		return err
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.Value{targetTensor, sourceTensor}, []ort.Value{out}); err != nil {
		return fmt.Errorf("swap inference failed: %w", err)
	}

	swapped := fromCHW(out.GetData(), swapInputSize)
	resized := imaging.Resize(swapped, region.Dx(), region.Dy(), imaging.Linear)

	s.blend(dst, resized, region)
	return nil
}

// Close releases the session.
func (s *ONNXSwapper) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// blend pastes src into dst at region with a feathered border so the
// generated face does not produce a hard seam.
func (s *ONNXSwapper) blend(dst *image.NRGBA, src *image.NRGBA, region image.Rectangle) {
	w := region.Dx()
	h := region.Dy()
	feather := s.feather * w / swapInputSize
	if feather < 1 {
		feather = 1
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			edge := min(min(x, w-1-x), min(y, h-1-y))
			alpha := 1.0
			if edge < feather {
				alpha = float64(edge) / float64(feather)
			}

			si := src.PixOffset(x, y)
			di := dst.PixOffset(region.Min.X+x, region.Min.Y+y)
			for c := 0; c < 3; c++ {
				dv := float64(dst.Pix[di+c])
				sv := float64(src.Pix[si+c])
				dst.Pix[di+c] = uint8(dv + (sv-dv)*alpha)
			}
		}
	}
}

// fromCHW converts a [-1,1] channel-first BGR blob back to an NRGBA image.
func fromCHW(data []float32, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	plane := size * size

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			pos := y*size + x
			i := img.PixOffset(x, y)
			img.Pix[i] = denorm(data[2*plane+pos])
			img.Pix[i+1] = denorm(data[plane+pos])
			img.Pix[i+2] = denorm(data[pos])
			img.Pix[i+3] = 255
		}
	}

	return img
}

func denorm(v float32) uint8 {
	scaled := (float64(v) + 1) * 127.5
	return uint8(math.Min(255, math.Max(0, math.Round(scaled))))
}

// l2Normalize scales the embedding to unit length.
func l2Normalize(emb *Embedding) []float32 {
	result := make([]float32, len(emb))
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i, v := range emb {
			result[i] = v / norm
		}
	} else {
		copy(result, emb[:])
	}
	return result
}
