// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"time"

	"github.com/disintegration/imaging"
)

type (
	Origin       string
	RejectReason string
)

const (
	OriginURL    Origin = "url"
	OriginUpload Origin = "upload"
)

const (
	ReasonNSFW    RejectReason = "flagged-nsfw"
	ReasonKeyword RejectReason = "keyword-match"
	ReasonNonFace RejectReason = "non-portrait-asset"
)

//---------------------

// Candidate is one externally sourced image offer: a trending post or a
// search hit. Only metadata needed for fetching and filtering is kept.
type Candidate struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Source    string    `json:"source"` // subreddit or site name
	Score     int       `json:"score,omitempty"`
	NSFW      bool      `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Verdict is the filter's decision for one candidate.
type Verdict struct {
	Accepted bool
	Reason   RejectReason
}

//-------------------

// SwapRequest is one unit of pipeline work.
type SwapRequest struct {
	Data        []byte // raw source image bytes
	ContentType string
	Origin      Origin
	SourceURL   string // set for OriginURL, used for the cache key
	MaxWidth    int    // 0 means the configured default
}

// SwapResult is the immutable outcome of a pipeline run.
type SwapResult struct {
	OriginalKey  string    `json:"original_key"`
	SwappedKey   string    `json:"swapped_key"`
	FacesSwapped int       `json:"faces_swapped"`
	Swapped      bool      `json:"swapped"`
	Cached       bool      `json:"cached,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

//-------------------

// RoastRequest asks the text-generation collaborator for a caption.
type RoastRequest struct {
	ImageKey string `form:"key"`
	Tone     string `form:"tone"`
}

// ------------------

var (
	ErrCommon500             error = errors.New("something went wrong. Try again later")     // 500
	ErrInvalidImage          error = errors.New("source image is empty or not decodable")    // 400
	ErrIncorrectQuery        error = errors.New("incorrect query parameters")                // 400
	ErrCandidateRejected     error = errors.New("candidate rejected by content filter")      // 422
	ErrResultNotFound        error = errors.New("requested image key doesn't exist")         // 404
	ErrSourceUnavailable     error = errors.New("source image could not be fetched")         // 502
	ErrModelUnavailable      error = errors.New("face model artifact is not obtainable")     // 503
	ErrReferenceFaceMissing  error = errors.New("reference face image is missing")           // 503
	ErrCredentialMissing     error = errors.New("required API credential is not configured") // 503
	ErrGenerationUnavailable error = errors.New("text generation failed or timed out")       // 503
	ErrUnsupportedFormat     error = errors.New("unsupported source image format")           // 400
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	WEBP = "image/webp"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
	WEBP: ".webp",
}

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	GIF:  true,
	WEBP: true,
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
}
