package skeleton

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tbourn/go-ttm-coach/internal/catalog"
	"github.com/tbourn/go-ttm-coach/internal/scoring"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	return NewPlanner(c)
}

// neutral returns scores that sit in the middle band everywhere, so no
// fragment fires.
func neutral(st catalog.Stage) scoring.Scores {
	return scoring.Scores{
		Stage: st,
		PSSM:  scoring.PSSMScores{SelfEfficacy: 15},
		PDSM:  scoring.PDSMScores{Pros: 10, Cons: 9},
		PPSM:  scoring.PPSMScores{Experiential: 15, Behavioral: 15},
		RISCI: scoring.RISCIScores{Stress: 8, Coping: 8},
		SMA:   scoring.SMAScores{Planning: 6, Reframing: 6, HealthyActivity: 6},
	}
}

func cardIDs(cards []catalog.Card) string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return strings.Join(ids, ",")
}

func TestBuild_NeutralScoresKeepBase(t *testing.T) {
	p := newTestPlanner(t)
	for _, st := range catalog.Stages {
		res, err := p.Build(neutral(st))
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		base, _ := p.Catalog.Base(st)
		if len(res.Fired) != 0 {
			t.Fatalf("%s: unexpected fragments %v", st, res.Fired)
		}
		if cardIDs(res.Skeleton.WeeklyPlanCards) != cardIDs(base.WeeklyPlanCards) {
			t.Fatalf("%s: cards changed", st)
		}
		if res.SMAFocus != FocusNone {
			t.Fatalf("%s: focus = %q", st, res.SMAFocus)
		}
		info, _ := p.Catalog.Stage(st)
		if res.StageName != info.Name || res.Skeleton.Stage != info.Name {
			t.Fatalf("%s: stage name %q", st, res.StageName)
		}
	}
}

func TestBuild_SMAFocusLowestScoreAmongFlagged(t *testing.T) {
	p := newTestPlanner(t)
	cases := []struct {
		name                string
		plan, refr, healthy int
		want                Focus
		fragment            string
	}{
		{"planning lowest", 4, 5, 6, FocusPlanning, catalog.FragmentSMAPlanning},
		{"reframing lowest", 4, 3, 6, FocusReframing, catalog.FragmentSMAReframing},
		{"tie goes to planning", 4, 4, 4, FocusPlanning, catalog.FragmentSMAPlanning},
		{"tie goes to reframing before healthy", 6, 2, 2, FocusReframing, catalog.FragmentSMAReframing},
		{"only healthy flagged", 8, 9, 5, FocusHealthy, catalog.FragmentSMAHealthy},
		{"none flagged", 6, 7, 8, FocusNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := neutral(catalog.StagePreparation)
			s.SMA = scoring.SMAScores{Planning: tc.plan, Reframing: tc.refr, HealthyActivity: tc.healthy}
			res, err := p.Build(s)
			if err != nil {
				t.Fatal(err)
			}
			if res.SMAFocus != tc.want {
				t.Fatalf("focus = %q, want %q", res.SMAFocus, tc.want)
			}
			smaFragments := 0
			for _, f := range res.Fired {
				switch f {
				case catalog.FragmentSMAPlanning, catalog.FragmentSMAReframing, catalog.FragmentSMAHealthy:
					smaFragments++
					if f != tc.fragment {
						t.Fatalf("fired %s, want %s", f, tc.fragment)
					}
				}
			}
			if (tc.want == FocusNone && smaFragments != 0) || (tc.want != FocusNone && smaFragments != 1) {
				t.Fatalf("fired %v", res.Fired)
			}
		})
	}
}

func TestBuild_StressMicroNeedsSMAFocus(t *testing.T) {
	p := newTestPlanner(t)

	s := neutral(catalog.StageAction)
	s.RISCI.Stress = 14
	res, err := p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range res.Fired {
		if f == catalog.FragmentStressMicro {
			t.Fatalf("micro intervention fired without an SMA gap")
		}
	}

	s.SMA.Reframing = 3
	res, err = p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fired) == 0 || res.Fired[0] != catalog.FragmentStressMicro {
		t.Fatalf("fired = %v", res.Fired)
	}
	if res.Skeleton.TodayAction.ID != "micro_downshift" {
		t.Fatalf("today action = %s", res.Skeleton.TodayAction.ID)
	}
	if res.Skeleton.WeeklyPlanCards[0].ID != "recovery_break" {
		t.Fatalf("recovery break not first: %s", cardIDs(res.Skeleton.WeeklyPlanCards))
	}
}

func TestBuild_TinySuccessOverridesTodayAction(t *testing.T) {
	p := newTestPlanner(t)
	s := neutral(catalog.StagePreparation)
	s.RISCI.Stress = 15
	s.SMA.Planning = 2
	s.PSSM.SelfEfficacy = 6
	res, err := p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	// applied after the micro intervention, so it wins
	if res.Skeleton.TodayAction.ID != "tiny_success_chain" {
		t.Fatalf("today action = %s", res.Skeleton.TodayAction.ID)
	}
	if res.Skeleton.TodayAction.EstMinutes > 2 {
		t.Fatalf("tiny action too long: %d", res.Skeleton.TodayAction.EstMinutes)
	}
	if !strings.Contains(cardIDs(res.Skeleton.WeeklyPlanCards), "success_chain") {
		t.Fatalf("reinforcement card missing")
	}
}

func TestUnfavourable(t *testing.T) {
	p := newTestPlanner(t)
	cases := []struct {
		name       string
		pros, cons int
		want       bool
	}{
		{"balanced", 11, 8, false},
		{"cons above pros within the same band", 9, 10, true},
		{"pros band needs attention", 7, 3, true},
		{"cons band needs attention while pros is higher", 15, 12, true},
		{"equal scores", 9, 9, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := neutral(catalog.StageContemplation)
			s.PDSM = scoring.PDSMScores{Pros: tc.pros, Cons: tc.cons}
			b, err := scoring.Classify(p.Catalog, s)
			if err != nil {
				t.Fatal(err)
			}
			if got := Unfavourable(p.Catalog, s, b); got != tc.want {
				t.Fatalf("Unfavourable = %v, want %v", got, tc.want)
			}
			res, _ := p.Build(s)
			fired := strings.Contains(strings.Join(res.Fired, ","), catalog.FragmentProsBoost)
			if fired != tc.want {
				t.Fatalf("pros boost fired = %v", fired)
			}
		})
	}
}

func TestBuild_AllFragmentsRespectCeiling(t *testing.T) {
	p := newTestPlanner(t)
	s := neutral(catalog.StageAction)
	s.RISCI.Stress = 15
	s.SMA.Planning = 2
	s.PSSM.SelfEfficacy = 5
	s.PDSM = scoring.PDSMScores{Pros: 3, Cons: 15}

	res, err := p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fired) != 4 {
		t.Fatalf("fired = %v", res.Fired)
	}
	if n := len(res.Skeleton.WeeklyPlanCards); n != MaxCards {
		t.Fatalf("cards = %d (%s)", n, cardIDs(res.Skeleton.WeeklyPlanCards))
	}
	if strings.Contains(cardIDs(res.Skeleton.WeeklyPlanCards), "help") {
		t.Fatalf("optional card should have been trimmed")
	}
	wantTrace := 1 + len(res.Fired)
	if len(res.Skeleton.RulesTrace) != wantTrace {
		t.Fatalf("rules trace = %v", res.Skeleton.RulesTrace)
	}
}

func TestBuild_CeilingHoldsForEveryTriggerCombination(t *testing.T) {
	p := newTestPlanner(t)
	for _, st := range catalog.Stages {
		for mask := 0; mask < 32; mask++ {
			s := neutral(st)
			if mask&1 != 0 {
				s.RISCI.Stress = 15
			}
			if mask&2 != 0 {
				s.PSSM.SelfEfficacy = 5
			}
			if mask&4 != 0 {
				s.PDSM.Cons = 11
			}
			if mask&8 != 0 {
				s.SMA.Planning = 3
			}
			if mask&16 != 0 {
				s.SMA.HealthyActivity = 2
			}
			res, err := p.Build(s)
			if err != nil {
				t.Fatalf("%s/%d: %v", st, mask, err)
			}
			cards := res.Skeleton.WeeklyPlanCards
			if len(cards) <= MaxCards {
				continue
			}
			for _, c := range cards {
				if !c.Required {
					t.Fatalf("%s/%d: %d cards with optional %s left", st, mask, len(cards), c.ID)
				}
			}
		}
	}
}

func TestTrim_KeepsRequiredCards(t *testing.T) {
	var cards []catalog.Card
	for i := 0; i < 9; i++ {
		cards = append(cards, catalog.Card{ID: string(rune('a' + i)), Required: i != 2})
	}
	got := Trim(cards, MaxCards)
	if len(got) != 8 || strings.Contains(cardIDs(got), "c") {
		t.Fatalf("got %s", cardIDs(got))
	}
	if len(cards) != 9 {
		t.Fatalf("input mutated")
	}

	cards[8].Required = false
	cards[5].Required = false
	got = Trim(cards, MaxCards)
	if cardIDs(got) != "a,b,c,d,e,g,h" {
		t.Fatalf("got %s", cardIDs(got))
	}
}

func TestMerger_UpsertDedupeAndTrace(t *testing.T) {
	base := catalog.Skeleton{
		WeeklyPlanCards: []catalog.Card{{ID: "one", Title: "old"}, {ID: "two"}},
		Obstacles:       []catalog.Obstacle{{Obstacle: "tired", PlanHint: "one minute"}},
		MotivationHints: catalog.MotivationHints{Pros: []string{"sleep"}},
		RulesTrace:      []string{"base"},
	}
	m := newMerger(base)
	m.apply(catalog.Fragment{
		WeeklyPlanCards: []catalog.Card{{ID: "three"}, {ID: "one", Title: "new"}},
		Obstacles: []catalog.Obstacle{
			{Obstacle: "tired", PlanHint: "one minute"},
			{Obstacle: "tired", PlanHint: "rest first"},
		},
		MotivationHints: catalog.MotivationHints{Pros: []string{"sleep", "focus"}, Reframing: []string{"data"}},
		RulesTrace:      []string{"f1"},
	})
	m.apply(catalog.Fragment{
		WeeklyPlanCards: []catalog.Card{{ID: "zero"}},
		PrependCards:    true,
		RulesTrace:      []string{"f1"},
	})
	sk := m.skeleton()

	if cardIDs(sk.WeeklyPlanCards) != "zero,one,two,three" {
		t.Fatalf("cards = %s", cardIDs(sk.WeeklyPlanCards))
	}
	if sk.WeeklyPlanCards[1].Title != "new" {
		t.Fatalf("card one not replaced in place")
	}
	if len(sk.Obstacles) != 2 {
		t.Fatalf("obstacles = %+v", sk.Obstacles)
	}
	if strings.Join(sk.MotivationHints.Pros, ",") != "sleep,focus" {
		t.Fatalf("pros = %v", sk.MotivationHints.Pros)
	}
	if strings.Join(sk.RulesTrace, ",") != "base,f1,f1" {
		t.Fatalf("trace must append without dedupe: %v", sk.RulesTrace)
	}
	if base.WeeklyPlanCards[0].Title != "old" {
		t.Fatalf("base mutated")
	}
}

func TestBuild_IdempotentAndCatalogUntouched(t *testing.T) {
	p := newTestPlanner(t)
	s := neutral(catalog.StageMaintenance)
	s.PSSM.SelfEfficacy = 5
	s.SMA.Reframing = 2

	a, err := p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	a.Skeleton.WeeklyPlanCards[0].Checklist[0] = "mutated"

	b, err := p.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	if b.Skeleton.WeeklyPlanCards[0].Checklist[0] == "mutated" {
		t.Fatalf("result shares state with the catalog")
	}
	c, _ := p.Build(s)
	jb, err := b.ContextJSON()
	if err != nil {
		t.Fatal(err)
	}
	jc, _ := c.ContextJSON()
	if !bytes.Equal(jb, jc) {
		t.Fatalf("context not deterministic")
	}
	if !bytes.Contains(jb, []byte(`"selected_sma_focus":"reframing"`)) {
		t.Fatalf("context missing focus: %s", jb)
	}
}

func TestBuild_BandNotFoundPropagates(t *testing.T) {
	p := newTestPlanner(t)
	s := neutral(catalog.StageAction)
	s.PPSM.Behavioral = 99
	if _, err := p.Build(s); err == nil {
		t.Fatalf("expected error")
	}
}
