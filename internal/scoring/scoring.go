// Package scoring turns a team snapshot into an engagement score.
//
// FORMULA:
//
//	score = T / (α × (S + 1)) + β × N
//
//	T = sum of member weights
//	S = hours between the team's first and last check-in
//	N = members whose user is still flagged is_new
//
// A team with no check-ins scores 0 no matter who is in it. A burst of
// check-ins (small S) keeps the weight term near T; the same number spread
// over a long span decays towards 0. New members add a flat β each.
package scoring

import (
	"errors"
	"time"

	"github.com/sakif/teamrally/internal/model"
)

const (
	DefaultAlpha = 1.0
	DefaultBeta  = 2.0
)

// ErrInvalidAlpha is returned by New when α is not strictly positive.
var ErrInvalidAlpha = errors.New("scoring: alpha must be greater than zero")

// Engine evaluates team snapshots. It holds no state beyond its
// parameters and is safe for concurrent use.
type Engine struct {
	alpha float64
	beta  float64
}

// New returns an Engine with the given parameters.
func New(alpha, beta float64) (*Engine, error) {
	// !(alpha > 0) also rejects NaN.
	if !(alpha > 0) {
		return nil, ErrInvalidAlpha
	}
	return &Engine{alpha: alpha, beta: beta}, nil
}

// Alpha returns the span damping factor.
func (e *Engine) Alpha() float64 { return e.alpha }

// Beta returns the per-new-member bonus.
func (e *Engine) Beta() float64 { return e.beta }

// Score computes the engagement score of snap.
//
// Weights go into the sum unmodified: zero and negative weights are legal
// and can push a score to zero or below.
func (e *Engine) Score(snap *model.TeamSnapshot) float64 {
	if snap == nil || snap.CheckIns.Count == 0 {
		return 0
	}

	hours := SpanHours(snap)

	var totalWeight float64
	newMembers := 0
	for _, m := range snap.Members {
		totalWeight += m.Weight
		if m.IsNew {
			newMembers++
		}
	}

	return totalWeight/(e.alpha*(hours+1)) + e.beta*float64(newMembers)
}

// SpanHours is the S term of the formula: hours from the first to the last
// check-in, 0 with fewer than two.
func SpanHours(snap *model.TeamSnapshot) float64 {
	if snap == nil || snap.CheckIns.Count < 2 {
		return 0
	}
	return max(snap.CheckIns.Last.Sub(snap.CheckIns.First), time.Duration(0)).Hours()
}
