// Package recognize implements the face matching engine: matching query
// embeddings against the gallery, orchestrating one recognition call
// end-to-end and debouncing duplicate attendance events.
package recognize

import (
	"github.com/kozaktomas/face-attendance/internal/detect"
)

// MatchResult is the per-face outcome of one recognition call. IdentityID is
// empty when the face did not match any enrolled identity within tolerance.
type MatchResult struct {
	FaceIndex   int        `json:"face_index"`
	Box         detect.Box `json:"box"`
	IdentityID  string     `json:"identity_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Recognized  bool       `json:"recognized"`
	Distance    float64    `json:"distance"`
	Confidence  float64    `json:"confidence"`
	Embedding   []float32  `json:"-"` // kept for unknown-face persistence, not serialized
}

// Outcome is the assembled result of one recognition call. Recognized counts
// distinct matched identities; a spurious double-detection of one person
// counts once. LoggedIdentities lists identities the debouncer accepted for
// a new attendance event, in detection order.
type Outcome struct {
	TotalFaces       int           `json:"total_faces"`
	Recognized       int           `json:"recognized"`
	Unknown          int           `json:"unknown"`
	Matches          []MatchResult `json:"matches"`
	LoggedIdentities []string      `json:"logged_identities"`
}
