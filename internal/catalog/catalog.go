// Package catalog holds the static, versioned content the engine reads:
// banding range tables, message templates, stage metadata and the work-plan
// skeletons. A Catalog is loaded once, validated, and then treated as
// immutable; it is safe for concurrent readers.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// Stage is a Transtheoretical Model stage of change.
type Stage string

const (
	StagePrecontemplation Stage = "PC"
	StageContemplation    Stage = "C"
	StagePreparation      Stage = "PR"
	StageAction           Stage = "A"
	StageMaintenance      Stage = "M"
)

// DefaultStage is used when a caller does not know the user's stage yet.
const DefaultStage = StagePrecontemplation

// Stages lists every stage in model order.
var Stages = []Stage{
	StagePrecontemplation,
	StageContemplation,
	StagePreparation,
	StageAction,
	StageMaintenance,
}

// Valid reports whether s is one of the five known stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePrecontemplation, StageContemplation, StagePreparation, StageAction, StageMaintenance:
		return true
	}
	return false
}

// SubDimension identifies one scored facet of a questionnaire.
type SubDimension string

const (
	RISCIStress        SubDimension = "risci.stress"
	RISCICoping        SubDimension = "risci.coping"
	SMAPlanning        SubDimension = "sma.planning"
	SMAReframing       SubDimension = "sma.reframing"
	SMAHealthyActivity SubDimension = "sma.healthy_activity"
	PSSMSelfEfficacy   SubDimension = "pssm.self_efficacy"
	PDSMPros           SubDimension = "pdsm.pros"
	PDSMCons           SubDimension = "pdsm.cons"
	PPSMExperiential   SubDimension = "ppsm.experiential"
	PPSMBehavioral     SubDimension = "ppsm.behavioral"
)

// SubDimensions lists every sub-dimension in questionnaire order.
var SubDimensions = []SubDimension{
	RISCIStress, RISCICoping,
	SMAPlanning, SMAReframing, SMAHealthyActivity,
	PSSMSelfEfficacy,
	PDSMPros, PDSMCons,
	PPSMExperiential, PPSMBehavioral,
}

// Likert bounds shared by every questionnaire item.
const (
	LikertMin = 1
	LikertMax = 5
)

// Band is one bucket of a banding table. Range is inclusive on both ends.
type Band struct {
	ID        string `yaml:"id"        json:"id"`
	Label     string `yaml:"label"     json:"label"`
	Range     []int  `yaml:"range"     json:"range"`
	Attention bool   `yaml:"attention" json:"attention"`
}

// Contains reports whether v falls within the band's inclusive range.
func (b Band) Contains(v int) bool {
	return len(b.Range) == 2 && v >= b.Range[0] && v <= b.Range[1]
}

// Banding is the range table of a single sub-dimension.
type Banding struct {
	Items                 int               `yaml:"items"`
	Bands                 []Band            `yaml:"banding"`
	PrescriptionCollapsed map[string]string `yaml:"prescription_collapsed"`
}

// Min and Max are the smallest and largest totals a fully answered
// sub-dimension can produce.
func (b Banding) Min() int { return b.Items * LikertMin }
func (b Banding) Max() int { return b.Items * LikertMax }

// StageInfo is the coaching metadata of a stage.
type StageInfo struct {
	Label            string   `yaml:"label"             json:"label"`
	Name             string   `yaml:"name"              json:"name"`
	Description      string   `yaml:"description"       json:"description"`
	CoachingStrategy string   `yaml:"coaching_strategy" json:"coaching_strategy"`
	Choices          []string `yaml:"choices"           json:"choices"`
}

// Catalog is the full dataset. Fields are exported for decoding only;
// callers go through the accessor methods.
type Catalog struct {
	Version   string                   `yaml:"version"`
	Stages    map[Stage]StageInfo      `yaml:"stages"`
	Bands     map[SubDimension]Banding `yaml:"bands"`
	Messages  map[Namespace][]Message  `yaml:"messages"`
	Skeletons Skeletons                `yaml:"skeletons"`
}

// Errors returned by accessors and validation.
var (
	ErrUnknownSubDimension = errors.New("catalog: unknown sub-dimension")
	ErrUnknownStage        = errors.New("catalog: unknown stage")
	ErrUnknownFragment     = errors.New("catalog: unknown fragment")
	ErrInvalid             = errors.New("catalog: invalid")
)

// Banding returns the range table for d.
func (c *Catalog) Banding(d SubDimension) (Banding, error) {
	b, ok := c.Bands[d]
	if !ok {
		return Banding{}, fmt.Errorf("%w: %s", ErrUnknownSubDimension, d)
	}
	return b, nil
}

// Stage returns the metadata of s.
func (c *Catalog) Stage(s Stage) (StageInfo, error) {
	info, ok := c.Stages[s]
	if !ok {
		return StageInfo{}, fmt.Errorf("%w: %s", ErrUnknownStage, s)
	}
	return info, nil
}

// Group returns the ordered message list of ns. The slice must not be modified.
func (c *Catalog) Group(ns Namespace) ([]Message, bool) {
	list, ok := c.Messages[ns]
	return list, ok
}

// Namespaces returns the message group names in sorted order.
func (c *Catalog) Namespaces() []Namespace {
	out := make([]Namespace, 0, len(c.Messages))
	for ns := range c.Messages {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Base returns a deep copy of the base skeleton for s.
func (c *Catalog) Base(s Stage) (Skeleton, error) {
	sk, ok := c.Skeletons.Base[s]
	if !ok {
		return Skeleton{}, fmt.Errorf("%w: no base skeleton for %s", ErrUnknownStage, s)
	}
	return sk.Clone(), nil
}

// Fragment returns the named override fragment.
func (c *Catalog) Fragment(name string) (Fragment, error) {
	f, ok := c.Skeletons.Fragments[name]
	if !ok {
		return Fragment{}, fmt.Errorf("%w: %s", ErrUnknownFragment, name)
	}
	return f, nil
}
