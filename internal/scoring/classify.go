package scoring

import (
	"fmt"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
)

// BandOf scans the ordered range table of d and returns the first band whose
// inclusive range contains v.
func BandOf(cat *catalog.Catalog, d catalog.SubDimension, v int) (catalog.Band, error) {
	b, err := cat.Banding(d)
	if err != nil {
		return catalog.Band{}, err
	}
	for _, band := range b.Bands {
		if band.Contains(v) {
			return band, nil
		}
	}
	return catalog.Band{}, fmt.Errorf("%w: %s=%d", ErrBandNotFound, d, v)
}

// Classify maps every total of s to its band id and resolves the
// prescription keys of the stress and coping bands.
func Classify(cat *catalog.Catalog, s Scores) (Bands, error) {
	if !s.Stage.Valid() {
		return Bands{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidInputShape, s.Stage)
	}
	out := Bands{Stage: s.Stage}
	for _, d := range catalog.SubDimensions {
		v, _ := s.Get(d)
		band, err := BandOf(cat, d, v)
		if err != nil {
			return Bands{}, err
		}
		*out.field(d) = band.ID
	}

	stress, err := prescriptionKey(cat, catalog.RISCIStress, out.RISCI.Stress)
	if err != nil {
		return Bands{}, err
	}
	coping, err := prescriptionKey(cat, catalog.RISCICoping, out.RISCI.Coping)
	if err != nil {
		return Bands{}, err
	}
	out.RISCIPresc = RISCIBands{Stress: stress, Coping: coping}
	return out, nil
}

func prescriptionKey(cat *catalog.Catalog, d catalog.SubDimension, bandID string) (string, error) {
	b, err := cat.Banding(d)
	if err != nil {
		return "", err
	}
	key, ok := b.PrescriptionCollapsed[bandID]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s band %s has no prescription key", ErrBandNotFound, d, bandID)
	}
	return key, nil
}

// Attention reports whether bandID is the band the catalog flags as needing
// attention for d.
func Attention(cat *catalog.Catalog, d catalog.SubDimension, bandID string) bool {
	b, err := cat.Banding(d)
	if err != nil {
		return false
	}
	for _, band := range b.Bands {
		if band.ID == bandID {
			return band.Attention
		}
	}
	return false
}

// Labels resolves display labels for every band in b. Unknown ids fall back
// to the id itself.
func Labels(cat *catalog.Catalog, b Bands) BandLabels {
	out := BandLabels{Stage: string(b.Stage)}
	if info, err := cat.Stage(b.Stage); err == nil && info.Label != "" {
		out.Stage = info.Label
	}
	for _, d := range catalog.SubDimensions {
		id := b.Get(d)
		*out.field(d) = labelOf(cat, d, id)
	}
	return out
}

func labelOf(cat *catalog.Catalog, d catalog.SubDimension, id string) string {
	b, err := cat.Banding(d)
	if err != nil {
		return id
	}
	for _, band := range b.Bands {
		if band.ID == id && band.Label != "" {
			return band.Label
		}
	}
	return id
}
