// Package scoring turns questionnaire answers into sub-scale totals and
// classifies those totals into catalog-defined bands. Everything here is a
// pure function of its inputs and the injected catalog.
package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
)

var (
	// ErrInvalidInputShape reports malformed or incomplete raw answers.
	ErrInvalidInputShape = errors.New("scoring: invalid input shape")
	// ErrBandNotFound reports a score no catalog range covers.
	ErrBandNotFound = errors.New("scoring: band not found")
	// ErrScoreOutOfDomain reports a submitted total outside [items, 5*items].
	ErrScoreOutOfDomain = errors.New("scoring: score out of domain")
)

// ParseStage normalizes and validates a stage code.
func ParseStage(s string) (catalog.Stage, error) {
	st := catalog.Stage(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidInputShape, s)
	}
	return st, nil
}

type PSSMScores struct {
	SelfEfficacy int `json:"self_efficacy" example:"14"`
}

type PDSMScores struct {
	Pros int `json:"pros" example:"10"`
	Cons int `json:"cons" example:"8"`
}

type PPSMScores struct {
	Experiential int `json:"experiential" example:"15"`
	Behavioral   int `json:"behavioral"   example:"12"`
}

type RISCIScores struct {
	Stress int `json:"stress" example:"11"`
	Coping int `json:"coping" example:"9"`
}

type SMAScores struct {
	Planning        int `json:"planning"         example:"4"`
	Reframing       int `json:"reframing"        example:"6"`
	HealthyActivity int `json:"healthy_activity" example:"7"`
}

// Scores holds one total per sub-dimension plus the self-reported stage.
type Scores struct {
	Stage catalog.Stage `json:"stage" example:"PR"`
	PSSM  PSSMScores    `json:"pssm"`
	PDSM  PDSMScores    `json:"pdsm"`
	PPSM  PPSMScores    `json:"ppsm"`
	RISCI RISCIScores   `json:"risci"`
	SMA   SMAScores     `json:"sma"`
}

func (s *Scores) field(d catalog.SubDimension) *int {
	switch d {
	case catalog.RISCIStress:
		return &s.RISCI.Stress
	case catalog.RISCICoping:
		return &s.RISCI.Coping
	case catalog.SMAPlanning:
		return &s.SMA.Planning
	case catalog.SMAReframing:
		return &s.SMA.Reframing
	case catalog.SMAHealthyActivity:
		return &s.SMA.HealthyActivity
	case catalog.PSSMSelfEfficacy:
		return &s.PSSM.SelfEfficacy
	case catalog.PDSMPros:
		return &s.PDSM.Pros
	case catalog.PDSMCons:
		return &s.PDSM.Cons
	case catalog.PPSMExperiential:
		return &s.PPSM.Experiential
	case catalog.PPSMBehavioral:
		return &s.PPSM.Behavioral
	}
	return nil
}

// Get returns the total of d.
func (s Scores) Get(d catalog.SubDimension) (int, error) {
	p := s.field(d)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", catalog.ErrUnknownSubDimension, d)
	}
	return *p, nil
}

// Validate checks that the stage is known and every total lies inside the
// domain a fully answered questionnaire can produce.
func (s Scores) Validate(cat *catalog.Catalog) error {
	if !s.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInputShape, s.Stage)
	}
	for _, d := range catalog.SubDimensions {
		b, err := cat.Banding(d)
		if err != nil {
			return err
		}
		v, _ := s.Get(d)
		if v < b.Min() || v > b.Max() {
			return fmt.Errorf("%w: %s=%d not in [%d,%d]", ErrScoreOutOfDomain, d, v, b.Min(), b.Max())
		}
	}
	return nil
}

type RISCIBands struct {
	Stress string `json:"stress" example:"HIGH"`
	Coping string `json:"coping" example:"MID"`
}

type SMABands struct {
	Planning        string `json:"planning"         example:"LOW"`
	Reframing       string `json:"reframing"        example:"MID"`
	HealthyActivity string `json:"healthy_activity" example:"MID"`
}

type PSSMBands struct {
	SelfEfficacy string `json:"self_efficacy" example:"MID"`
}

type PDSMBands struct {
	Pros string `json:"pros" example:"MID"`
	Cons string `json:"cons" example:"MID"`
}

type PPSMBands struct {
	Experiential string `json:"experiential" example:"MID"`
	Behavioral   string `json:"behavioral"   example:"MID"`
}

// BandSet mirrors Scores with one string per sub-dimension. It carries band
// ids in Bands and human-readable labels in BandLabels.
type BandSet struct {
	RISCI RISCIBands `json:"risci"`
	SMA   SMABands   `json:"sma"`
	PSSM  PSSMBands  `json:"pssm"`
	PDSM  PDSMBands  `json:"pdsm"`
	PPSM  PPSMBands  `json:"ppsm"`
}

func (b *BandSet) field(d catalog.SubDimension) *string {
	switch d {
	case catalog.RISCIStress:
		return &b.RISCI.Stress
	case catalog.RISCICoping:
		return &b.RISCI.Coping
	case catalog.SMAPlanning:
		return &b.SMA.Planning
	case catalog.SMAReframing:
		return &b.SMA.Reframing
	case catalog.SMAHealthyActivity:
		return &b.SMA.HealthyActivity
	case catalog.PSSMSelfEfficacy:
		return &b.PSSM.SelfEfficacy
	case catalog.PDSMPros:
		return &b.PDSM.Pros
	case catalog.PDSMCons:
		return &b.PDSM.Cons
	case catalog.PPSMExperiential:
		return &b.PPSM.Experiential
	case catalog.PPSMBehavioral:
		return &b.PPSM.Behavioral
	}
	return nil
}

// Get returns the value stored for d, or "" for an unknown sub-dimension.
func (b BandSet) Get(d catalog.SubDimension) string {
	if p := b.field(d); p != nil {
		return *p
	}
	return ""
}

// Bands is the classification of a Scores record. RISCIPresc holds the
// prescription keys the stress and coping bands collapse to.
type Bands struct {
	Stage catalog.Stage `json:"stage" example:"PR"`
	BandSet
	RISCIPresc RISCIBands `json:"risci_presc"`
}

// BandLabels carries the display label of every band and of the stage.
type BandLabels struct {
	Stage string `json:"stage" example:"Preparation stage"`
	BandSet
}
