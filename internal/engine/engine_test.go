package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return c
}

// lowest score of band i (0-based) of d in the default catalog
func scoreIn(t *testing.T, cat *catalog.Catalog, d catalog.SubDimension, i int) int {
	t.Helper()
	b, err := cat.Banding(d)
	if err != nil {
		t.Fatal(err)
	}
	return b.Bands[i%len(b.Bands)].Range[0]
}

func scoresFor(t *testing.T, cat *catalog.Catalog, st catalog.Stage, band map[catalog.SubDimension]int) scoring.Scores {
	t.Helper()
	s := scoring.Scores{Stage: st}
	s.RISCI.Stress = scoreIn(t, cat, catalog.RISCIStress, band[catalog.RISCIStress])
	s.RISCI.Coping = scoreIn(t, cat, catalog.RISCICoping, band[catalog.RISCICoping])
	s.SMA.Planning = scoreIn(t, cat, catalog.SMAPlanning, band[catalog.SMAPlanning])
	s.SMA.Reframing = scoreIn(t, cat, catalog.SMAReframing, band[catalog.SMAReframing])
	s.SMA.HealthyActivity = scoreIn(t, cat, catalog.SMAHealthyActivity, band[catalog.SMAHealthyActivity])
	s.PSSM.SelfEfficacy = scoreIn(t, cat, catalog.PSSMSelfEfficacy, band[catalog.PSSMSelfEfficacy])
	s.PDSM.Pros = scoreIn(t, cat, catalog.PDSMPros, band[catalog.PDSMPros])
	s.PDSM.Cons = scoreIn(t, cat, catalog.PDSMCons, band[catalog.PDSMCons])
	s.PPSM.Experiential = scoreIn(t, cat, catalog.PPSMExperiential, band[catalog.PPSMExperiential])
	s.PPSM.Behavioral = scoreIn(t, cat, catalog.PPSMBehavioral, band[catalog.PPSMBehavioral])
	return s
}

func TestSelect_EverySlotFilledForAllCombinations(t *testing.T) {
	cat := testCatalog(t)
	for _, policy := range []SelfEfficacyPolicy{SEStageConditional, SEAlwaysBanded} {
		sel := NewSelector(cat, policy)
		for _, st := range catalog.Stages {
			for pros := 0; pros < 3; pros++ {
				for cons := 0; cons < 3; cons++ {
					for se := 0; se < 3; se++ {
						for exp := 0; exp < 3; exp++ {
							for beh := 0; beh < 3; beh++ {
								for rest := 0; rest < 3; rest++ {
									s := scoresFor(t, cat, st, map[catalog.SubDimension]int{
										catalog.PDSMPros:           pros,
										catalog.PDSMCons:           cons,
										catalog.PSSMSelfEfficacy:   se,
										catalog.PPSMExperiential:   exp,
										catalog.PPSMBehavioral:     beh,
										catalog.RISCIStress:        rest,
										catalog.RISCICoping:        rest,
										catalog.SMAPlanning:        rest,
										catalog.SMAReframing:       (rest + 1) % 3,
										catalog.SMAHealthyActivity: (rest + 2) % 3,
									})
									res, err := sel.Select(s)
									if err != nil {
										t.Fatalf("%s %+v: %v", st, s, err)
									}
									if len(res.Items) != len(Slots) {
										t.Fatalf("got %d items, want %d", len(res.Items), len(Slots))
									}
									for i, it := range res.Items {
										if it.Slot != Slots[i] || it.ID == "" || it.Title == "" {
											t.Fatalf("slot %d malformed: %+v", i, it)
										}
									}
									if len(res.Degraded) != 0 {
										t.Fatalf("default catalog needed degraded lookups: %v", res.Degraded)
									}
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestSelect_StressMaxResolvesPrescriptionMessage(t *testing.T) {
	cat := testCatalog(t)
	s := scoresFor(t, cat, catalog.StageAction, nil)
	s.RISCI.Stress = 15
	res, err := NewSelector(cat, "").Select(s)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := res.Items[4].ID; got != "RISCI.STRESS.PRESC.ATTN" {
		t.Fatalf("stress slot = %s", got)
	}
}

func TestSelect_MissingPrescriptionMessageFails(t *testing.T) {
	cat := testCatalog(t)
	cat.Messages[catalog.NSStressPrescription] = cat.Messages[catalog.NSStressPrescription][:1]
	s := scoresFor(t, cat, catalog.StageAction, nil)
	s.RISCI.Stress = 15
	if _, err := NewSelector(cat, "").Select(s); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("want ErrMessageNotFound, got %v", err)
	}
}

func TestSelect_SelfEfficacyPolicies(t *testing.T) {
	cat := testCatalog(t)
	s := scoresFor(t, cat, catalog.StagePrecontemplation, nil)

	res, err := NewSelector(cat, SEStageConditional).Select(s)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Items[2].ID; got != catalog.IDSelfEfficacyPCC {
		t.Fatalf("stage_conditional at PC: got %s", got)
	}

	res, err = NewSelector(cat, SEAlwaysBanded).Select(s)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Items[2].ID; got != "SE.LOW" {
		t.Fatalf("always_banded at PC: got %s", got)
	}

	s.Stage = catalog.StageAction
	s.PSSM.SelfEfficacy = 25
	res, err = NewSelector(cat, SEStageConditional).Select(s)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Items[2].ID; got != "SE.HIGH" {
		t.Fatalf("stage_conditional at A: got %s", got)
	}
}

func TestSelect_ProcessBranchByStage(t *testing.T) {
	cat := testCatalog(t)
	cases := map[catalog.Stage]string{
		catalog.StagePrecontemplation: "PROC.EXP.LOW",
		catalog.StageContemplation:    "PROC.EXP.LOW",
		catalog.StagePreparation:      "PROC.JOINT.LOW_LOW",
		catalog.StageAction:           "PROC.BEH.LOW",
		catalog.StageMaintenance:      "PROC.BEH.LOW",
	}
	for st, want := range cases {
		res, err := NewSelector(cat, "").Select(scoresFor(t, cat, st, nil))
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if got := res.Items[3].ID; got != want {
			t.Fatalf("%s: process = %s, want %s", st, got, want)
		}
	}
}

func TestSelect_DecisionMatrixIsStageFiltered(t *testing.T) {
	cat := testCatalog(t)
	s := scoresFor(t, cat, catalog.StageContemplation, map[catalog.SubDimension]int{
		catalog.PDSMPros: 0,
		catalog.PDSMCons: 2,
	})
	res, err := NewSelector(cat, "").Select(s)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[1].ID != "DB.PC_C.LOW_HIGH" {
		t.Fatalf("C: got %s", res.Items[1].ID)
	}
	if !strings.Contains(res.Items[1].Body, "Contemplation stage") {
		t.Fatalf("stage_label not rendered: %q", res.Items[1].Body)
	}

	s.Stage = catalog.StageAction
	res, err = NewSelector(cat, "").Select(s)
	if err != nil {
		t.Fatal(err)
	}
	if res.Items[1].ID != "DB.LOW_HIGH" {
		t.Fatalf("A: got %s", res.Items[1].ID)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	cat := testCatalog(t)
	sel := NewSelector(cat, "")
	s := scoresFor(t, cat, catalog.StagePreparation, map[catalog.SubDimension]int{
		catalog.PDSMPros:       2,
		catalog.RISCIStress:    2,
		catalog.PPSMBehavioral: 1,
	})
	a, err := sel.Select(s)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := sel.Select(s)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("non-deterministic output:\n%s\n%s", ja, jb)
	}
}

func TestSelect_InvalidStage(t *testing.T) {
	cat := testCatalog(t)
	s := scoresFor(t, cat, catalog.StageAction, nil)
	s.Stage = "Q"
	if _, err := NewSelector(cat, "").Select(s); !errors.Is(err, scoring.ErrInvalidInputShape) {
		t.Fatalf("want ErrInvalidInputShape, got %v", err)
	}
}

func TestFindByBands_TieBreak(t *testing.T) {
	probe := map[string]string{"pros": "LOW", "cons": "HIGH"}
	generic := catalog.Message{ID: "generic"}
	other := catalog.Message{ID: "other", Bands: map[string]string{"pros": "MID", "cons": "HIGH"}}
	exact := catalog.Message{ID: "exact", Bands: map[string]string{"pros": "LOW", "cons": "HIGH"}}

	cases := []struct {
		name string
		list []catalog.Message
		want string
	}{
		{"exact after generic", []catalog.Message{other, generic, exact}, "exact"},
		{"exact first", []catalog.Message{exact, generic, other}, "exact"},
		{"generic fallback", []catalog.Message{other, generic}, "generic"},
		{"first fallback", []catalog.Message{other, {ID: "x", Bands: map[string]string{"pros": "HIGH"}}}, "other"},
		{"first of two exact", []catalog.Message{{ID: "e1", Bands: probe}, exact}, "e1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := FindByBands(tc.list, probe)
			if err != nil {
				t.Fatal(err)
			}
			if m.ID != tc.want {
				t.Fatalf("got %s, want %s", m.ID, tc.want)
			}
		})
	}

	if _, err := FindByBands(nil, probe); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("empty list: want ErrMessageNotFound, got %v", err)
	}
}

func TestFilterByStage_PreservesOrder(t *testing.T) {
	list := []catalog.Message{
		{ID: "a"},
		{ID: "b", Stages: []catalog.Stage{catalog.StageAction}},
		{ID: "c", Stages: []catalog.Stage{catalog.StagePreparation}},
		{ID: "d"},
	}
	got := FilterByStage(list, catalog.StagePreparation)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if strings.Join(ids, ",") != "a,c,d" {
		t.Fatalf("got %v", ids)
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in     string
		ns, id string
	}{
		{"HEADER.STAGE", "HEADER", "HEADER.STAGE"},
		{"RISCI.STRESS.PRESC.OK", "RISCI.STRESS.PRESC", "RISCI.STRESS.PRESC.OK"},
		{"SMA.PLANNING:LOW", "SMA.PLANNING", "SMA.PLANNING.LOW"},
		{"FOOTER:FOOTER.NEXT_STEP", "FOOTER", "FOOTER.NEXT_STEP"},
		{"PLAIN", "PLAIN", "PLAIN"},
	}
	for _, tc := range cases {
		r := ParseRef(tc.in)
		if string(r.Namespace) != tc.ns || r.ID != tc.id {
			t.Fatalf("ParseRef(%q) = %+v", tc.in, r)
		}
	}
}

func TestPickByID(t *testing.T) {
	cat := testCatalog(t)

	m, degraded, err := PickByID(cat, "SMA.REFRAMING:MID")
	if err != nil || degraded || m.ID != "SMA.REFRAMING.MID" {
		t.Fatalf("colon form: %+v %v %v", m, degraded, err)
	}

	// "SE" is not a group, so the id is found by scanning.
	m, degraded, err = PickByID(cat, "SE.HIGH")
	if err != nil || !degraded || m.ID != "SE.HIGH" {
		t.Fatalf("degraded scan: %+v %v %v", m, degraded, err)
	}

	if _, _, err := PickByID(cat, "SMA.PLANNING.NONE"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing id in existing group: got %v", err)
	}
	if _, _, err := PickByID(cat, "NOPE.NOTHING"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing everywhere: got %v", err)
	}
}

func TestRender_MissingVarsAreEmpty(t *testing.T) {
	m := catalog.Message{
		ID:       "x",
		Template: catalog.Template{Title: "Hi {{ name }}", Body: "{{a}}-{{b}}-{{a}}"},
	}
	r := Render(m, SlotHeader, map[string]string{"a": "1", "name": "Kim"})
	if r.Title != "Hi Kim" || r.Body != "1--1" {
		t.Fatalf("got %+v", r)
	}
	if r.SuggestedActions == nil {
		t.Fatalf("suggested actions should be an empty list, not nil")
	}
}

func TestParseSEPolicy(t *testing.T) {
	if p, err := ParseSEPolicy(""); err != nil || p != SEStageConditional {
		t.Fatalf("default: %q %v", p, err)
	}
	if p, err := ParseSEPolicy("ALWAYS_BANDED"); err != nil || p != SEAlwaysBanded {
		t.Fatalf("always: %q %v", p, err)
	}
	if _, err := ParseSEPolicy("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_UnmappedSubDimensionFails(t *testing.T) {
	cat := testCatalog(t)

	r := &run{sel: NewSelector(cat, ""), stage: catalog.StageAction}
	r.prescribed(SlotStress, catalog.SMAPlanning, "low")
	if !errors.Is(r.err, ErrMessageNotFound) {
		t.Fatalf("prescribed on a banded dimension: want ErrMessageNotFound, got %v", r.err)
	}

	r = &run{sel: NewSelector(cat, ""), stage: catalog.StageAction}
	r.banded(SlotSMAPlanning, catalog.RISCIStress, "low")
	if !errors.Is(r.err, ErrMessageNotFound) {
		t.Fatalf("banded on a prescribed dimension: want ErrMessageNotFound, got %v", r.err)
	}
	if len(r.items) != 0 {
		t.Fatalf("no item should be rendered, got %d", len(r.items))
	}
}
