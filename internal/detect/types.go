// Package detect wraps the platform face detector/encoder service. The
// service does the heavy lifting (locating faces and computing embeddings);
// this package owns the wire contract and input validation.
package detect

import "errors"

// ErrDecode is returned when the input image bytes cannot be decoded.
// Zero detected faces is not an error.
var ErrDecode = errors.New("cannot decode image")

// Detection modes. Fast runs an HOG detector suited to CPU-only real-time
// use; Accurate runs the slower CNN detector.
const (
	ModeFast     = "hog"
	ModeAccurate = "cnn"
)

// Encoder model tiers.
const (
	EncoderSmall = "small"
	EncoderLarge = "large"
)

// Box is a face bounding box in pixel coordinates, in the detector's
// (top, right, bottom, left) convention.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Face is one detected face: its location and the embedding computed from it.
type Face struct {
	FaceIndex int       `json:"face_index"`
	Box       Box       `json:"box"`
	Embedding []float32 `json:"embedding"`
	DetScore  float64   `json:"det_score"`
}

// Result is the detector response for one image.
type Result struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
	Dim        int    `json:"dim"`
}

// Options select the detector and encoder behavior for a single request.
type Options struct {
	Mode         string // ModeFast or ModeAccurate
	NumJitters   int    // resampling passes, >= 1
	EncoderModel string // EncoderSmall or EncoderLarge
}

// Normalize fills in defaults for zero-valued options.
func (o Options) Normalize() Options {
	if o.Mode == "" {
		o.Mode = ModeFast
	}
	if o.NumJitters < 1 {
		o.NumJitters = 1
	}
	if o.EncoderModel == "" {
		o.EncoderModel = EncoderLarge
	}
	return o
}
