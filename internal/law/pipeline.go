package law

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the environmental law an inspection case is governed by.
// It is fixed at case creation and selects the stage pipeline.
type Code string

const (
	PD1586 Code = "PD-1586" // Environmental Impact Statement System
	RA6969 Code = "RA-6969" // Toxic Substances and Hazardous Wastes
	RA8749 Code = "RA-8749" // Clean Air Act
	RA9003 Code = "RA-9003" // Ecological Solid Waste Management Act
	RA9275 Code = "RA-9275" // Clean Water Act
)

// Stage is an organizational step a case passes through before review.
type Stage string

const (
	StageSection    Stage = "section"
	StageUnit       Stage = "unit"
	StageMonitoring Stage = "monitoring"
)

// ErrUnknownLaw is returned for law codes outside the fixed set.
// Callers must treat it as a configuration error, not a retryable failure.
var ErrUnknownLaw = errors.New("law: unknown law code")

// Pipeline is the ordered list of stages for one law.
type Pipeline []Stage

// Has reports whether the pipeline contains stage.
func (p Pipeline) Has(stage Stage) bool {
	for _, s := range p {
		if s == stage {
			return true
		}
	}
	return false
}

// First returns the entry stage of the pipeline.
func (p Pipeline) First() Stage {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Next returns the stage following after. ok is false when after is the last
// stage or is not part of the pipeline.
func (p Pipeline) Next(after Stage) (next Stage, ok bool) {
	for i, s := range p {
		if s != after {
			continue
		}
		if i+1 < len(p) {
			return p[i+1], true
		}
		return "", false
	}
	return "", false
}

// Resolver maps law codes to their stage pipelines.
// The zero value is not usable; call NewResolver.
type Resolver struct {
	pipelines map[Code]Pipeline
}

// NewResolver returns the resolver for the fixed law set. Laws with a
// technical unit (EIA, air, water) route Section -> Unit -> Monitoring; the
// rest go straight from Section to Monitoring.
func NewResolver() *Resolver {
	withUnit := Pipeline{StageSection, StageUnit, StageMonitoring}
	withoutUnit := Pipeline{StageSection, StageMonitoring}
	return &Resolver{pipelines: map[Code]Pipeline{
		PD1586: withUnit,
		RA8749: withUnit,
		RA9275: withUnit,
		RA6969: withoutUnit,
		RA9003: withoutUnit,
	}}
}

// StagesFor returns a copy of the pipeline for code.
func (r *Resolver) StagesFor(code Code) (Pipeline, error) {
	p, ok := r.pipelines[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLaw, string(code))
	}
	out := make(Pipeline, len(p))
	copy(out, p)
	return out, nil
}

// Codes lists the supported law codes.
func (r *Resolver) Codes() []Code {
	out := make([]Code, 0, len(r.pipelines))
	for _, c := range []Code{PD1586, RA6969, RA8749, RA9003, RA9275} {
		if _, ok := r.pipelines[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ParseCode normalizes user input such as "pd 1586" or "ra-9003".
func ParseCode(s string) (Code, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, " ", "-")
	if v == "" {
		return "", fmt.Errorf("%w: empty", ErrUnknownLaw)
	}
	if !strings.Contains(v, "-") && len(v) > 2 {
		v = v[:2] + "-" + v[2:]
	}
	if _, ok := NewResolver().pipelines[Code(v)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLaw, s)
	}
	return Code(v), nil
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case StageSection:
		return StageSection, nil
	case StageUnit:
		return StageUnit, nil
	case StageMonitoring:
		return StageMonitoring, nil
	default:
		return "", fmt.Errorf("law: unknown stage %q", s)
	}
}
