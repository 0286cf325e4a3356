// Package engine selects and renders the feedback messages for a scored
// submission. Selection is deterministic: the same scores and catalog always
// produce the same slots, ids and text, in the same order.
package engine

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
)

// Slot is a fixed topic position in the feedback sequence.
type Slot string

const (
	SlotHeader       Slot = "header"
	SlotDecision     Slot = "decision_balance"
	SlotSelfEfficacy Slot = "self_efficacy"
	SlotProcess      Slot = "process"
	SlotStress       Slot = "stress"
	SlotCoping       Slot = "coping"
	SlotSMAPlanning  Slot = "sma_planning"
	SlotSMAReframing Slot = "sma_reframing"
	SlotSMAHealthy   Slot = "sma_healthy_activity"
	SlotFooter       Slot = "footer"
)

// Slots lists every slot in output order.
var Slots = []Slot{
	SlotHeader,
	SlotDecision,
	SlotSelfEfficacy,
	SlotProcess,
	SlotStress,
	SlotCoping,
	SlotSMAPlanning,
	SlotSMAReframing,
	SlotSMAHealthy,
	SlotFooter,
}

// SelfEfficacyPolicy decides how the self-efficacy slot is filled.
type SelfEfficacyPolicy string

const (
	// SEStageConditional uses the generic message for PC and C and a banded
	// message otherwise.
	SEStageConditional SelfEfficacyPolicy = "stage_conditional"
	// SEAlwaysBanded uses the banded message at every stage.
	SEAlwaysBanded SelfEfficacyPolicy = "always_banded"
)

// ParseSEPolicy maps a config value to a policy. Empty means the default.
func ParseSEPolicy(s string) (SelfEfficacyPolicy, error) {
	switch p := SelfEfficacyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SEStageConditional, nil
	case SEStageConditional, SEAlwaysBanded:
		return p, nil
	}
	return "", fmt.Errorf("engine: unknown self-efficacy policy %q", s)
}

// Var names available to templates.
const VarStageLabel = "stage_label"

// Selector fills the feedback slots from the catalog.
type Selector struct {
	Catalog      *catalog.Catalog
	SelfEfficacy SelfEfficacyPolicy
}

// NewSelector returns a Selector using policy p.
func NewSelector(cat *catalog.Catalog, p SelfEfficacyPolicy) *Selector {
	if p == "" {
		p = SEStageConditional
	}
	return &Selector{Catalog: cat, SelfEfficacy: p}
}

// Result is the classified bands plus one rendered message per slot.
// Degraded lists ids that were only found by scanning every group.
type Result struct {
	Bands    scoring.Bands `json:"bands"`
	Items    []Rendered    `json:"messages"`
	Degraded []string      `json:"degraded,omitempty"`
}

// Select classifies s and renders the message of every slot in order.
func (sel *Selector) Select(s scoring.Scores) (Result, error) {
	bands, err := scoring.Classify(sel.Catalog, s)
	if err != nil {
		return Result{}, err
	}
	vars := map[string]string{VarStageLabel: sel.stageLabel(s.Stage)}

	r := &run{sel: sel, stage: s.Stage, vars: vars}
	r.byID(SlotHeader, catalog.IDHeaderStage)
	r.byBands(SlotDecision, catalog.NSDecisionMatrix, map[string]string{
		"pros": bands.PDSM.Pros,
		"cons": bands.PDSM.Cons,
	})
	if sel.genericSelfEfficacy(s.Stage) {
		r.byID(SlotSelfEfficacy, catalog.IDSelfEfficacyPCC)
	} else {
		r.byBands(SlotSelfEfficacy, catalog.NSSelfEfficacyBanded, map[string]string{
			"self_efficacy": bands.PSSM.SelfEfficacy,
		})
	}
	switch s.Stage {
	case catalog.StagePrecontemplation, catalog.StageContemplation:
		r.byBands(SlotProcess, catalog.NSProcExperiential, map[string]string{
			"experiential": bands.PPSM.Experiential,
		})
	case catalog.StagePreparation:
		r.byBands(SlotProcess, catalog.NSProcJoint, map[string]string{
			"experiential": bands.PPSM.Experiential,
			"behavioral":   bands.PPSM.Behavioral,
		})
	default:
		r.byBands(SlotProcess, catalog.NSProcBehavioral, map[string]string{
			"behavioral": bands.PPSM.Behavioral,
		})
	}
	r.prescribed(SlotStress, catalog.RISCIStress, bands.RISCIPresc.Stress)
	r.prescribed(SlotCoping, catalog.RISCICoping, bands.RISCIPresc.Coping)
	r.banded(SlotSMAPlanning, catalog.SMAPlanning, bands.SMA.Planning)
	r.banded(SlotSMAReframing, catalog.SMAReframing, bands.SMA.Reframing)
	r.banded(SlotSMAHealthy, catalog.SMAHealthyActivity, bands.SMA.HealthyActivity)
	r.byID(SlotFooter, catalog.IDFooterNextStep)

	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Bands: bands, Items: r.items, Degraded: r.degraded}, nil
}

func (sel *Selector) genericSelfEfficacy(st catalog.Stage) bool {
	if sel.SelfEfficacy == SEAlwaysBanded {
		return false
	}
	return st == catalog.StagePrecontemplation || st == catalog.StageContemplation
}

func (sel *Selector) stageLabel(st catalog.Stage) string {
	if info, err := sel.Catalog.Stage(st); err == nil && info.Label != "" {
		return info.Label
	}
	return string(st)
}

func key(ns catalog.Namespace, k string) string { return string(ns) + "." + k }

// run accumulates slots and stops at the first error.
type run struct {
	sel      *Selector
	stage    catalog.Stage
	vars     map[string]string
	items    []Rendered
	degraded []string
	err      error
}

func (r *run) byID(slot Slot, id string) {
	if r.err != nil {
		return
	}
	m, degraded, err := PickByID(r.sel.Catalog, id)
	if err != nil {
		r.err = fmt.Errorf("slot %s: %w", slot, err)
		return
	}
	if degraded {
		r.degraded = append(r.degraded, id)
	}
	r.items = append(r.items, Render(m, slot, r.vars))
}

// prescribed fills slot with the prescription message keyed by the
// collapsed band k of d.
func (r *run) prescribed(slot Slot, d catalog.SubDimension, k string) {
	ns, ok := catalog.PrescriptionNamespace(d)
	if !ok {
		r.fail(slot, d)
		return
	}
	r.byID(slot, key(ns, k))
}

// banded fills slot with the message keyed by the band id of d.
func (r *run) banded(slot Slot, d catalog.SubDimension, band string) {
	ns, ok := catalog.BandNamespace(d)
	if !ok {
		r.fail(slot, d)
		return
	}
	r.byID(slot, key(ns, band))
}

func (r *run) fail(slot Slot, d catalog.SubDimension) {
	if r.err == nil {
		r.err = fmt.Errorf("slot %s: %w: no namespace for %s", slot, ErrMessageNotFound, d)
	}
}

func (r *run) byBands(slot Slot, ns catalog.Namespace, probe map[string]string) {
	if r.err != nil {
		return
	}
	list, ok := r.sel.Catalog.Group(ns)
	if !ok {
		r.err = fmt.Errorf("slot %s: %w: group %s", slot, ErrMessageNotFound, ns)
		return
	}
	m, err := FindByBands(FilterByStage(list, r.stage), probe)
	if err != nil {
		r.err = fmt.Errorf("slot %s: %s: %w", slot, ns, err)
		return
	}
	r.items = append(r.items, Render(m, slot, r.vars))
}
