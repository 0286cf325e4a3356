package catalog

import (
	"fmt"
	"sort"
)

// prescribed lists the sub-dimensions whose bands go through a
// prescription_collapsed table before message lookup.
var prescribed = map[SubDimension]Namespace{
	RISCIStress: NSStressPrescription,
	RISCICoping: NSCopingPrescription,
}

// directBand lists the sub-dimensions whose band id is used verbatim as a
// message key.
var directBand = map[SubDimension]Namespace{
	SMAPlanning:        NSSMAPlanning,
	SMAReframing:       NSSMAReframing,
	SMAHealthyActivity: NSSMAHealthy,
}

// PrescriptionNamespace returns the message namespace holding the
// prescription messages of d.
func PrescriptionNamespace(d SubDimension) (Namespace, bool) {
	ns, ok := prescribed[d]
	return ns, ok
}

// BandNamespace returns the message namespace keyed directly by the band id of d.
func BandNamespace(d SubDimension) (Namespace, bool) {
	ns, ok := directBand[d]
	return ns, ok
}

// Validate checks the structural guarantees the engine relies on: every
// range table tiles its score domain, every id the selector can ask for
// exists, and every stage has metadata and a base skeleton.
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalid)
	}
	for _, d := range SubDimensions {
		b, ok := c.Bands[d]
		if !ok {
			return fmt.Errorf("%w: missing banding for %s", ErrInvalid, d)
		}
		if err := validateBanding(d, b); err != nil {
			return err
		}
	}
	for _, s := range Stages {
		if _, ok := c.Stages[s]; !ok {
			return fmt.Errorf("%w: missing stage metadata for %s", ErrInvalid, s)
		}
		if _, ok := c.Skeletons.Base[s]; !ok {
			return fmt.Errorf("%w: missing base skeleton for %s", ErrInvalid, s)
		}
	}
	for _, name := range Fragments {
		if _, ok := c.Skeletons.Fragments[name]; !ok {
			return fmt.Errorf("%w: missing fragment %s", ErrInvalid, name)
		}
	}
	return c.validateMessages()
}

func validateBanding(d SubDimension, b Banding) error {
	if b.Items <= 0 {
		return fmt.Errorf("%w: %s: items must be > 0", ErrInvalid, d)
	}
	if len(b.Bands) == 0 {
		return fmt.Errorf("%w: %s: empty banding", ErrInvalid, d)
	}
	seen := make(map[string]struct{}, len(b.Bands))
	sorted := make([]Band, 0, len(b.Bands))
	for _, band := range b.Bands {
		if band.ID == "" {
			return fmt.Errorf("%w: %s: band without id", ErrInvalid, d)
		}
		if _, dup := seen[band.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate band %s", ErrInvalid, d, band.ID)
		}
		seen[band.ID] = struct{}{}
		if len(band.Range) != 2 || band.Range[0] > band.Range[1] {
			return fmt.Errorf("%w: %s: band %s has a malformed range", ErrInvalid, d, band.ID)
		}
		sorted = append(sorted, band)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Range[0] < sorted[j].Range[0] })

	next := b.Min()
	for _, band := range sorted {
		if band.Range[0] != next {
			return fmt.Errorf("%w: %s: ranges must tile [%d,%d] (gap or overlap at %d)", ErrInvalid, d, b.Min(), b.Max(), next)
		}
		next = band.Range[1] + 1
	}
	if next != b.Max()+1 {
		return fmt.Errorf("%w: %s: ranges end at %d, domain ends at %d", ErrInvalid, d, next-1, b.Max())
	}

	if _, ok := prescribed[d]; ok {
		for id := range seen {
			if b.PrescriptionCollapsed[id] == "" {
				return fmt.Errorf("%w: %s: prescription_collapsed has no key for band %s", ErrInvalid, d, id)
			}
		}
	}
	return nil
}

func (c *Catalog) validateMessages() error {
	ids := make(map[Namespace]map[string]struct{}, len(c.Messages))
	for _, ns := range c.Namespaces() {
		ids[ns] = make(map[string]struct{}, len(c.Messages[ns]))
		for _, m := range c.Messages[ns] {
			if m.ID == "" {
				return fmt.Errorf("%w: message without id in %s", ErrInvalid, ns)
			}
			for _, s := range m.Stages {
				if !s.Valid() {
					return fmt.Errorf("%w: message %s names unknown stage %q", ErrInvalid, m.ID, s)
				}
			}
			ids[ns][m.ID] = struct{}{}
		}
	}

	type ref struct {
		ns Namespace
		id string
	}
	required := []ref{
		{NSHeader, IDHeaderStage},
		{NSSelfEfficacyGeneric, IDSelfEfficacyPCC},
		{NSFooter, IDFooterNextStep},
	}
	for d, ns := range prescribed {
		for _, key := range c.Bands[d].PrescriptionCollapsed {
			required = append(required, ref{ns, string(ns) + "." + key})
		}
	}
	for d, ns := range directBand {
		for _, band := range c.Bands[d].Bands {
			required = append(required, ref{ns, string(ns) + "." + band.ID})
		}
	}
	for _, r := range required {
		if _, ok := ids[r.ns][r.id]; !ok {
			return fmt.Errorf("%w: missing message %s in group %s", ErrInvalid, r.id, r.ns)
		}
	}

	for _, ns := range []Namespace{NSDecisionMatrix, NSSelfEfficacyBanded, NSProcExperiential, NSProcJoint, NSProcBehavioral} {
		if len(c.Messages[ns]) == 0 {
			return fmt.Errorf("%w: message group %s is empty", ErrInvalid, ns)
		}
		for _, s := range Stages {
			if !anyApplies(c.Messages[ns], s) {
				return fmt.Errorf("%w: message group %s has nothing for stage %s", ErrInvalid, ns, s)
			}
		}
	}
	return nil
}

func anyApplies(list []Message, s Stage) bool {
	for _, m := range list {
		if m.AppliesTo(s) {
			return true
		}
	}
	return false
}
