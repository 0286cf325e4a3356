package scoring

import (
	"fmt"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
)

// Answer is a single Likert response; nil means not answered yet.
type Answer = *int

type PDSMAnswers struct {
	Pros []Answer `json:"pros"`
	Cons []Answer `json:"cons"`
}

type PPSMAnswers struct {
	Experiential []Answer `json:"experiential"`
	Behavioral   []Answer `json:"behavioral"`
}

type RISCIAnswers struct {
	Stress []Answer `json:"stress"`
	Coping []Answer `json:"coping"`
}

type SMAAnswers struct {
	Planning  []Answer `json:"planning"`
	Reframing []Answer `json:"reframing"`
	Healthy   []Answer `json:"healthy"`
}

// RawAnswers is the per-item questionnaire payload. Slice lengths are fixed
// per sub-dimension by the catalog's item counts.
type RawAnswers struct {
	Stage catalog.Stage `json:"stage"`
	PSSM  []Answer      `json:"pssm"`
	PDSM  PDSMAnswers   `json:"pdsm"`
	PPSM  PPSMAnswers   `json:"ppsm"`
	RISCI RISCIAnswers  `json:"risci"`
	SMA   SMAAnswers    `json:"sma"`
}

// Items returns the answers recorded for d.
func (r RawAnswers) Items(d catalog.SubDimension) []Answer {
	switch d {
	case catalog.RISCIStress:
		return r.RISCI.Stress
	case catalog.RISCICoping:
		return r.RISCI.Coping
	case catalog.SMAPlanning:
		return r.SMA.Planning
	case catalog.SMAReframing:
		return r.SMA.Reframing
	case catalog.SMAHealthyActivity:
		return r.SMA.Healthy
	case catalog.PSSMSelfEfficacy:
		return r.PSSM
	case catalog.PDSMPros:
		return r.PDSM.Pros
	case catalog.PDSMCons:
		return r.PDSM.Cons
	case catalog.PPSMExperiential:
		return r.PPSM.Experiential
	case catalog.PPSMBehavioral:
		return r.PPSM.Behavioral
	}
	return nil
}

// Aggregate sums every sub-dimension of a complete submission. It fails with
// ErrInvalidInputShape when the stage is unknown, an array has the wrong
// length, an item is unanswered, or a value lies outside the Likert scale.
func Aggregate(cat *catalog.Catalog, raw RawAnswers) (Scores, error) {
	if !raw.Stage.Valid() {
		return Scores{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidInputShape, raw.Stage)
	}
	out := Scores{Stage: raw.Stage}
	for _, d := range catalog.SubDimensions {
		b, err := cat.Banding(d)
		if err != nil {
			return Scores{}, err
		}
		items := raw.Items(d)
		if len(items) != b.Items {
			return Scores{}, fmt.Errorf("%w: %s has %d items, want %d", ErrInvalidInputShape, d, len(items), b.Items)
		}
		sum := 0
		for i, a := range items {
			if a == nil {
				return Scores{}, fmt.Errorf("%w: %s item %d unanswered", ErrInvalidInputShape, d, i+1)
			}
			if *a < catalog.LikertMin || *a > catalog.LikertMax {
				return Scores{}, fmt.Errorf("%w: %s item %d = %d", ErrInvalidInputShape, d, i+1, *a)
			}
			sum += *a
		}
		*out.field(d) = sum
	}
	return out, nil
}
