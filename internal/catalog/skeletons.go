package catalog

// Fragment names applied by the work-skeleton planner.
const (
	FragmentStressMicro  = "stress_micro_intervention"
	FragmentTinySuccess  = "tiny_success_chain"
	FragmentProsBoost    = "pros_boost"
	FragmentSMAPlanning  = "sma_planning"
	FragmentSMAReframing = "sma_reframing"
	FragmentSMAHealthy   = "sma_healthy_activity"
)

// Fragments lists every fragment name the planner may apply.
var Fragments = []string{
	FragmentStressMicro,
	FragmentTinySuccess,
	FragmentProsBoost,
	FragmentSMAPlanning,
	FragmentSMAReframing,
	FragmentSMAHealthy,
}

// Card is one weekly plan card.
type Card struct {
	ID            string   `yaml:"id"              json:"id"`
	Type          string   `yaml:"type"            json:"type"`
	Title         string   `yaml:"title"           json:"title"`
	Checklist     []string `yaml:"checklist"       json:"checklist"`
	When          string   `yaml:"when"            json:"when"`
	TriggerIfThen string   `yaml:"trigger_if_then" json:"trigger_if_then"`
	EstMinutes    int      `yaml:"est_minutes"     json:"est_minutes"`
	Required      bool     `yaml:"required"        json:"required"`
}

// Obstacle pairs a likely barrier with a planning hint.
type Obstacle struct {
	Obstacle string `yaml:"obstacle"  json:"obstacle"`
	PlanHint string `yaml:"plan_hint" json:"plan_hint"`
}

// TodayAction is the single action suggested for today.
type TodayAction struct {
	ID         string   `yaml:"id"          json:"id"`
	EstMinutes int      `yaml:"est_minutes" json:"est_minutes"`
	Steps      []string `yaml:"steps"       json:"steps"`
}

// MotivationHints are short motivating statements.
type MotivationHints struct {
	Pros      []string `yaml:"pros"      json:"pros"`
	Reframing []string `yaml:"reframing" json:"reframing"`
}

// Skeleton is a structured weekly plan.
type Skeleton struct {
	Version         string          `yaml:"version"           json:"version"`
	Stage           string          `yaml:"stage"             json:"stage"`
	Focus           []string        `yaml:"focus"             json:"focus"`
	TodayAction     TodayAction     `yaml:"today_action"      json:"today_action"`
	WeeklyPlanCards []Card          `yaml:"weekly_plan_cards" json:"weekly_plan_cards"`
	Obstacles       []Obstacle      `yaml:"obstacles"         json:"obstacles"`
	MotivationHints MotivationHints `yaml:"motivation_hints"  json:"motivation_hints"`
	RulesTrace      []string        `yaml:"rules_trace"       json:"rules_trace"`
}

// Fragment is a partial skeleton merged over a base when its rule fires.
// New cards are appended unless PrependCards is set.
type Fragment struct {
	TodayAction     *TodayAction    `yaml:"today_action"`
	WeeklyPlanCards []Card          `yaml:"weekly_plan_cards"`
	PrependCards    bool            `yaml:"prepend_cards"`
	Obstacles       []Obstacle      `yaml:"obstacles"`
	MotivationHints MotivationHints `yaml:"motivation_hints"`
	RulesTrace      []string        `yaml:"rules_trace"`
}

// Skeletons groups the per-stage bases and the named fragments.
type Skeletons struct {
	Base      map[Stage]Skeleton  `yaml:"base"`
	Fragments map[string]Fragment `yaml:"fragments"`
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	c.Checklist = cloneStrings(c.Checklist)
	return c
}

// Clone returns a deep copy of the skeleton; the copy shares no slices
// with the catalog.
func (s Skeleton) Clone() Skeleton {
	out := s
	out.Focus = cloneStrings(s.Focus)
	out.TodayAction.Steps = cloneStrings(s.TodayAction.Steps)
	out.WeeklyPlanCards = make([]Card, len(s.WeeklyPlanCards))
	for i, c := range s.WeeklyPlanCards {
		out.WeeklyPlanCards[i] = c.Clone()
	}
	out.Obstacles = append([]Obstacle{}, s.Obstacles...)
	out.MotivationHints = MotivationHints{
		Pros:      cloneStrings(s.MotivationHints.Pros),
		Reframing: cloneStrings(s.MotivationHints.Reframing),
	}
	out.RulesTrace = cloneStrings(s.RulesTrace)
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
