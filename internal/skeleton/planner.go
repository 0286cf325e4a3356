// Package skeleton builds the structured weekly work plan for a scored
// submission: a per-stage base skeleton with rule-triggered fragments merged
// on top. The plan is derived data; it is rebuilt on every request and never
// stored as a source of truth.
package skeleton

import (
	"encoding/json"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
)

// MaxCards is the weekly card ceiling enforced by trimming optional cards.
const MaxCards = 7

// Focus names the single SMA area the week concentrates on.
type Focus string

const (
	FocusNone      Focus = ""
	FocusPlanning  Focus = "planning"
	FocusReframing Focus = "reframing"
	FocusHealthy   Focus = "healthy_activity"
)

var focusOrder = []struct {
	focus    Focus
	dim      catalog.SubDimension
	fragment string
}{
	{FocusPlanning, catalog.SMAPlanning, catalog.FragmentSMAPlanning},
	{FocusReframing, catalog.SMAReframing, catalog.FragmentSMAReframing},
	{FocusHealthy, catalog.SMAHealthyActivity, catalog.FragmentSMAHealthy},
}

// Result is the plan plus everything used to build it.
type Result struct {
	Skeleton   catalog.Skeleton   `json:"skeleton"`
	Stage      catalog.Stage      `json:"stage"`
	StageName  string             `json:"stage_name"`
	Scores     scoring.Scores     `json:"scores"`
	Bands      scoring.Bands      `json:"bands"`
	BandLabels scoring.BandLabels `json:"band_labels"`
	SMAFocus   Focus              `json:"selected_sma_focus,omitempty"`
	Fired      []string           `json:"fired"`
}

// Planner builds skeletons from the catalog.
type Planner struct {
	Catalog *catalog.Catalog
}

func NewPlanner(cat *catalog.Catalog) *Planner { return &Planner{Catalog: cat} }

// Build classifies s, clones the stage base and applies, in order:
//  1. stress micro intervention, when stress needs attention and an SMA focus exists
//  2. tiny success chain, when self-efficacy needs attention
//  3. pros boost, when the decisional balance is unfavourable
//  4. the fragment of the SMA focus, if any
//
// The weekly cards are then trimmed to MaxCards.
func (p *Planner) Build(s scoring.Scores) (*Result, error) {
	cat := p.Catalog
	bands, err := scoring.Classify(cat, s)
	if err != nil {
		return nil, err
	}
	base, err := cat.Base(s.Stage)
	if err != nil {
		return nil, err
	}
	info, _ := cat.Stage(s.Stage)
	if info.Name != "" {
		base.Stage = info.Name
	}

	focus, focusFragment := smaFocus(cat, s, bands)

	var fired []string
	if scoring.Attention(cat, catalog.RISCIStress, bands.RISCI.Stress) && focus != FocusNone {
		fired = append(fired, catalog.FragmentStressMicro)
	}
	if scoring.Attention(cat, catalog.PSSMSelfEfficacy, bands.PSSM.SelfEfficacy) {
		fired = append(fired, catalog.FragmentTinySuccess)
	}
	if Unfavourable(cat, s, bands) {
		fired = append(fired, catalog.FragmentProsBoost)
	}
	if focus != FocusNone {
		fired = append(fired, focusFragment)
	}

	plan := newMerger(base)
	for _, name := range fired {
		f, err := cat.Fragment(name)
		if err != nil {
			return nil, err
		}
		plan.apply(f)
	}
	sk := plan.skeleton()
	sk.WeeklyPlanCards = Trim(sk.WeeklyPlanCards, MaxCards)

	if fired == nil {
		fired = []string{}
	}
	return &Result{
		Skeleton:   sk,
		Stage:      s.Stage,
		StageName:  base.Stage,
		Scores:     s,
		Bands:      bands,
		BandLabels: scoring.Labels(cat, bands),
		SMAFocus:   focus,
		Fired:      fired,
	}, nil
}

// Unfavourable reports whether the decisional balance calls for a pros
// boost: pros needs attention, cons needs attention, or cons outscores pros.
// The banded and raw checks can disagree near band edges; either suffices.
func Unfavourable(cat *catalog.Catalog, s scoring.Scores, b scoring.Bands) bool {
	if scoring.Attention(cat, catalog.PDSMPros, b.PDSM.Pros) {
		return true
	}
	if scoring.Attention(cat, catalog.PDSMCons, b.PDSM.Cons) {
		return true
	}
	return s.PDSM.Cons > s.PDSM.Pros
}

// smaFocus picks the attention-flagged SMA area with the lowest raw score.
// Ties keep planning, reframing, healthy activity order.
func smaFocus(cat *catalog.Catalog, s scoring.Scores, b scoring.Bands) (Focus, string) {
	best, fragment, bestScore := FocusNone, "", 0
	for _, c := range focusOrder {
		if !scoring.Attention(cat, c.dim, b.Get(c.dim)) {
			continue
		}
		v, _ := s.Get(c.dim)
		if best == FocusNone || v < bestScore {
			best, fragment, bestScore = c.focus, c.fragment, v
		}
	}
	return best, fragment
}

// Trim drops non-required cards from the end until at most limit remain.
// Required cards are always kept, so the result may still exceed limit.
func Trim(cards []catalog.Card, limit int) []catalog.Card {
	if len(cards) <= limit {
		return cards
	}
	out := append([]catalog.Card(nil), cards...)
	for i := len(out) - 1; i >= 0 && len(out) > limit; i-- {
		if !out[i].Required {
			out = append(out[:i], out[i+1:]...)
		}
	}
	return out
}

// Context is the payload handed to the chat model.
type Context struct {
	Stage      string             `json:"stage"`
	Bands      scoring.BandLabels `json:"bands"`
	Skeleton   catalog.Skeleton   `json:"skeleton"`
	SMAFocus   Focus              `json:"selected_sma_focus,omitempty"`
	RulesFired []string           `json:"rules_fired"`
}

// ContextJSON renders the model context. Field order is fixed by the struct,
// so the same result always serializes to the same bytes.
func (r *Result) ContextJSON() ([]byte, error) {
	return json.Marshal(Context{
		Stage:      r.StageName,
		Bands:      r.BandLabels,
		Skeleton:   r.Skeleton,
		SMAFocus:   r.SMAFocus,
		RulesFired: r.Fired,
	})
}
