package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXDetector implements Detector on top of an SCRFD detection model and
// an ArcFace recognition model, both run through ONNX Runtime.
type ONNXDetector struct {
	det            *Session
	rec            *Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewONNXDetector creates the detection capability from model files.
// recModelPath may be empty; Embed then returns an error.
func NewONNXDetector(detModelPath, recModelPath string, inputSize int, confThreshold, nmsThreshold float32) (*ONNXDetector, error) {
	det, err := NewSession(
		detModelPath,
		[]string{"input.1"},
		[]string{
			"score_8", "score_16", "score_32",
			"bbox_8", "bbox_16", "bbox_32",
			"kps_8", "kps_16", "kps_32",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection session: %w", err)
	}

	var rec *Session
	if recModelPath != "" {
		rec, err = NewSession(recModelPath, []string{"input.1"}, []string{"683"})
		if err != nil {
			det.Destroy()
			return nil, fmt.Errorf("failed to create recognition session: %w", err)
		}
	}

	return &ONNXDetector{
		det:            det,
		rec:            rec,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
	}, nil
}

// Detect finds face candidates in an image.
func (d *ONNXDetector) Detect(img *image.NRGBA) ([]Face, error) {
	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()

	blob, scale := d.preprocess(img)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(d.inputSize), int64(d.inputSize)), blob)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, 9)
	for level, stride := range d.featureStrides {
		cells := int64(d.numAnchors * (d.inputSize / stride) * (d.inputSize / stride))
		score, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, 1))
		if err != nil {
			return nil, err
		}
		bbox, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, 4))
		if err != nil {
			return nil, err
		}
		kps, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, 10))
		if err != nil {
			return nil, err
		}
		outputs[level] = score
		outputs[level+3] = bbox
		outputs[level+6] = kps
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if err := d.det.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("detection inference failed: %w", err)
	}

	faces := d.postprocess(outputs, scale, origW, origH)
	return nms(faces, d.nmsThreshold), nil
}

// Embed extracts the identity embedding for one detected face.
func (d *ONNXDetector) Embed(img *image.NRGBA, face Face) (*Embedding, error) {
	if d.rec == nil {
		return nil, fmt.Errorf("recognition model not loaded")
	}

	crop := imaging.Crop(img, face.Box.Rect(img.Bounds()))
	aligned := imaging.Resize(crop, 112, 112, imaging.Linear)

	data := toCHW(aligned, 112, 127.5, 127.5)
	input, err := ort.NewTensor(ort.NewShape(1, 3, 112, 112), data)
	if err != nil {
		return nil, err
	}
	defer input.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 512))
	if err != nil {
		return nil, err
	}
	defer out.Destroy()

	if err := d.rec.Run([]ort.Value{input}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("recognition inference failed: %w", err)
	}

	var emb Embedding
	copy(emb[:], out.GetData())
	return &emb, nil
}

// Close releases both sessions.
func (d *ONNXDetector) Close() error {
	var err error
	if d.det != nil {
		err = d.det.Destroy()
	}
	if d.rec != nil {
		if rErr := d.rec.Destroy(); err == nil {
			err = rErr
		}
	}
	return err
}

// preprocess letterboxes the image to the square model input and converts
// it to a normalized NCHW float32 blob. Returns the blob and the scale
// used, so boxes can be mapped back to source coordinates.
func (d *ONNXDetector) preprocess(img *image.NRGBA) ([]float32, float32) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	scale := float32(d.inputSize) / float32(max(w, h))
	newW := int(float32(w) * scale)
	newH := int(float32(h) * scale)

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	padded := imaging.New(d.inputSize, d.inputSize, image.Black)
	padded = imaging.Paste(padded, resized, image.Pt(0, 0))

	return toCHW(padded, d.inputSize, 127.5, 128.0), scale
}

// postprocess decodes model outputs to faces
func (d *ONNXDetector) postprocess(outputs []ort.Value, scale float32, origW, origH int) []Face {
	var faces []Face

	for level, stride := range d.featureStrides {
		scoreData := outputs[level].(*ort.Tensor[float32]).GetData()
		bboxData := outputs[level+3].(*ort.Tensor[float32]).GetData()
		kpsData := outputs[level+6].(*ort.Tensor[float32]).GetData()

		fmSize := d.inputSize / stride
		anchorIdx := 0
		for y := 0; y < fmSize; y++ {
			for x := 0; x < fmSize; x++ {
				for a := 0; a < d.numAnchors; a++ {
					score := scoreData[anchorIdx]
					if score >= d.confThreshold {
						cx := float32(x) * float32(stride)
						cy := float32(y) * float32(stride)

						bboxIdx := anchorIdx * 4
						box := BoundingBox{
							X1: clamp((cx-bboxData[bboxIdx]*float32(stride))/scale, 0, float32(origW)),
							Y1: clamp((cy-bboxData[bboxIdx+1]*float32(stride))/scale, 0, float32(origH)),
							X2: clamp((cx+bboxData[bboxIdx+2]*float32(stride))/scale, 0, float32(origW)),
							Y2: clamp((cy+bboxData[bboxIdx+3]*float32(stride))/scale, 0, float32(origH)),
						}

						kpsIdx := anchorIdx * 10
						lm := Landmarks{
							LeftEye:    Point{(cx + kpsData[kpsIdx]*float32(stride)) / scale, (cy + kpsData[kpsIdx+1]*float32(stride)) / scale},
							RightEye:   Point{(cx + kpsData[kpsIdx+2]*float32(stride)) / scale, (cy + kpsData[kpsIdx+3]*float32(stride)) / scale},
							Nose:       Point{(cx + kpsData[kpsIdx+4]*float32(stride)) / scale, (cy + kpsData[kpsIdx+5]*float32(stride)) / scale},
							LeftMouth:  Point{(cx + kpsData[kpsIdx+6]*float32(stride)) / scale, (cy + kpsData[kpsIdx+7]*float32(stride)) / scale},
							RightMouth: Point{(cx + kpsData[kpsIdx+8]*float32(stride)) / scale, (cy + kpsData[kpsIdx+9]*float32(stride)) / scale},
						}

						faces = append(faces, Face{Box: box, Score: score, Landmarks: lm})
					}
					anchorIdx++
				}
			}
		}
	}

	return faces
}

// nms performs Non-Maximum Suppression on detected faces
func nms(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	sort.Slice(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if !keep[j] {
				continue
			}
			if iou(faces[i].Box, faces[j].Box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Face, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}

	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b BoundingBox) float32 {
	x1 := max32(a.X1, b.X1)
	y1 := max32(a.Y1, b.Y1)
	x2 := min32(a.X2, b.X2)
	y2 := min32(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// toCHW converts an NRGBA image to a channel-first BGR float32 blob with
// (v - mean) / std normalization.
func toCHW(img *image.NRGBA, size int, mean, std float32) []float32 {
	data := make([]float32, 3*size*size)
	plane := size * size

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			pos := y*size + x
			// BGR channel order, matching the insightface models
			data[pos] = (float32(img.Pix[i+2]) - mean) / std
			data[plane+pos] = (float32(img.Pix[i+1]) - mean) / std
			data[2*plane+pos] = (float32(img.Pix[i]) - mean) / std
		}
	}

	return data
}

func clamp(x, lo, hi float32) float32 {
	return float32(math.Min(float64(hi), math.Max(float64(lo), float64(x))))
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
