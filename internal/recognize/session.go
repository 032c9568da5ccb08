package recognize

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// shortlistSize is how many nearest gallery entries the matcher considers
// when the store's HNSW index is active. Exact distances are re-verified, so
// this only bounds work, not correctness.
const shortlistSize = 10

// Detector is the platform face detector/encoder capability.
type Detector interface {
	Detect(ctx context.Context, imageData []byte, opts detect.Options) (*detect.Result, error)
}

// Params configures a recognition session.
type Params struct {
	Tolerance     float64        // maximum embedding distance for a match
	DetectorOpts  detect.Options // detector mode, jitters, encoder tier
	MaxConcurrent int            // concurrent detector calls (<=0 means 1)
}

// Session runs recognition requests against a gallery. Safe for concurrent
// use; the detector semaphore keeps long CPU-bound detections from piling up
// while matching and debouncing stay lock-light.
type Session struct {
	detector  Detector
	store     *gallery.Store
	debouncer *Debouncer
	params    Params
	sem       chan struct{}
	now       func() time.Time
}

// NewSession creates a recognition session over the given gallery store.
func NewSession(detector Detector, store *gallery.Store, debouncer *Debouncer, params Params) *Session {
	workers := params.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	return &Session{
		detector:  detector,
		store:     store,
		debouncer: debouncer,
		params:    params,
		sem:       make(chan struct{}, workers),
		now:       time.Now,
	}
}

// Recognize runs one recognition call end-to-end: detect faces, match each
// against the current gallery snapshot, deduplicate repeated identities,
// and ask the debouncer which matches constitute new attendance events.
// A detector failure aborts the whole call with no partial outcome and no
// debouncer mutation. The debounce decision happens atomically inside this
// call, so an abandoned caller cannot leak a half-applied accept.
func (s *Session) Recognize(ctx context.Context, imageData []byte) (*Outcome, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for detector slot: %w", ctx.Err())
	}
	result, err := s.detector.Detect(ctx, imageData, s.params.DetectorOpts)
	<-s.sem
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		TotalFaces:       len(result.Faces),
		Matches:          make([]MatchResult, 0, len(result.Faces)),
		LoggedIdentities: []string{},
	}

	// One matched entry per identity, keyed by id; bestByID keeps the
	// highest-confidence detection when one person shows up twice.
	bestByID := make(map[string]int)
	var matchedOrder []string

	for _, face := range result.Faces {
		candidates := s.store.Candidates(face.Embedding, shortlistSize)
		identity, distance := Match(face.Embedding, candidates, s.params.Tolerance)

		mr := MatchResult{
			FaceIndex: face.FaceIndex,
			Box:       face.Box,
			Distance:  distance,
			Embedding: face.Embedding,
		}
		if identity != nil {
			mr.IdentityID = identity.ID
			mr.DisplayName = identity.DisplayName
			mr.Recognized = true
			mr.Confidence = 1 - distance
		}
		outcome.Matches = append(outcome.Matches, mr)

		if identity == nil {
			outcome.Unknown++
			continue
		}
		if prev, ok := bestByID[identity.ID]; ok {
			if mr.Confidence > outcome.Matches[prev].Confidence {
				bestByID[identity.ID] = len(outcome.Matches) - 1
			}
			continue // excess detection of the same person
		}
		bestByID[identity.ID] = len(outcome.Matches) - 1
		matchedOrder = append(matchedOrder, identity.ID)
	}

	outcome.Recognized = len(matchedOrder)

	now := s.now()
	for _, id := range matchedOrder {
		if s.debouncer.ShouldLog(id, now) {
			outcome.LoggedIdentities = append(outcome.LoggedIdentities, id)
		}
	}

	return outcome, nil
}

// LoggedMatches returns the match results for identities the outcome logged,
// handy for persisting attendance events with their confidence and box.
func (o *Outcome) LoggedMatches() []MatchResult {
	byID := make(map[string]MatchResult, len(o.Matches))
	for _, m := range o.Matches {
		if !m.Recognized {
			continue
		}
		if prev, ok := byID[m.IdentityID]; !ok || m.Confidence > prev.Confidence {
			byID[m.IdentityID] = m
		}
	}
	out := make([]MatchResult, 0, len(o.LoggedIdentities))
	for _, id := range o.LoggedIdentities {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// UnknownMatches returns the per-face results that matched nothing, for
// unknown-face persistence by the caller.
func (o *Outcome) UnknownMatches() []MatchResult {
	var out []MatchResult
	for _, m := range o.Matches {
		if !m.Recognized {
			out = append(out, m)
		}
	}
	return out
}
