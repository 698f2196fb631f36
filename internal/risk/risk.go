// Package risk implements the severity/likelihood matrix and five-whys
// root-cause capture.
package risk

import (
	"strings"

	"hazardline/internal/domain"
	"hazardline/internal/errclass"
)

const (
	MinSeverity   = 1
	MaxSeverity   = 5
	MinLikelihood = 0
	MaxLikelihood = 4
)

type Band string

const (
	Low    Band = "Low"
	Medium Band = "Medium"
	High   Band = "High"
)

// Assess validates the matrix coordinates.
func Assess(severity, likelihood int) (domain.RiskAnalysis, error) {
	if severity < MinSeverity || severity > MaxSeverity {
		return domain.RiskAnalysis{}, errclass.ErrValidation.WithMessagef("severity %d outside %d..%d", severity, MinSeverity, MaxSeverity)
	}
	if likelihood < MinLikelihood || likelihood > MaxLikelihood {
		return domain.RiskAnalysis{}, errclass.ErrValidation.WithMessagef("likelihood %d outside %d..%d", likelihood, MinLikelihood, MaxLikelihood)
	}
	return domain.RiskAnalysis{Severity: severity, Likelihood: likelihood}, nil
}

// Score is advisory and never persisted.
func Score(a domain.RiskAnalysis) int {
	return a.Severity + a.Likelihood
}

func BandOf(score int) Band {
	switch {
	case score <= 3:
		return Low
	case score <= 6:
		return Medium
	default:
		return High
	}
}

type Summary struct {
	Severity   int  `json:"severity"`
	Likelihood int  `json:"likelihood"`
	Score      int  `json:"score"`
	Band       Band `json:"band" enum:"Low,Medium,High"`
}

func Summarize(a domain.RiskAnalysis) Summary {
	s := Score(a)
	return Summary{Severity: a.Severity, Likelihood: a.Likelihood, Score: s, Band: BandOf(s)}
}

// RootCause is one answered why, numbered by its original position.
type RootCause struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// WhysFrom normalizes an arbitrary slice into exactly five entries.
func WhysFrom(in []string) (domain.Whys, error) {
	var w domain.Whys
	if len(in) > len(w) {
		return w, errclass.ErrValidation.WithMessagef("at most %d whys, got %d", len(w), len(in))
	}
	copy(w[:], in)
	return w, nil
}

// Answered returns the non-blank whys.
func Answered(w domain.Whys) []RootCause {
	var out []RootCause
	for i, text := range w {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, RootCause{Number: i + 1, Text: text})
	}
	return out
}
