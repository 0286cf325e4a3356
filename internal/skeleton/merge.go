package skeleton

import "github.com/tbourn/go-ttm-coach/internal/catalog"

// cardSet is an ordered map of cards keyed by id. Replacing a card keeps its
// position; new cards go to the front or the back.
type cardSet struct {
	order []string
	byID  map[string]catalog.Card
}

func newCardSet(cards []catalog.Card) *cardSet {
	cs := &cardSet{byID: make(map[string]catalog.Card, len(cards))}
	for _, c := range cards {
		cs.upsert(c, false)
	}
	return cs
}

func (cs *cardSet) upsert(c catalog.Card, front bool) {
	if _, ok := cs.byID[c.ID]; !ok {
		if front {
			cs.order = append([]string{c.ID}, cs.order...)
		} else {
			cs.order = append(cs.order, c.ID)
		}
	}
	cs.byID[c.ID] = c.Clone()
}

func (cs *cardSet) list() []catalog.Card {
	out := make([]catalog.Card, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, cs.byID[id])
	}
	return out
}

// stringSet appends values not already present.
type stringSet struct {
	items []string
	seen  map[string]struct{}
}

func newStringSet(in []string) *stringSet {
	s := &stringSet{items: []string{}, seen: map[string]struct{}{}}
	s.add(in...)
	return s
}

func (s *stringSet) add(vals ...string) {
	for _, v := range vals {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

// merger accumulates fragments over a cloned base skeleton.
type merger struct {
	base      catalog.Skeleton
	cards     *cardSet
	obstacles []catalog.Obstacle
	seenObs   map[catalog.Obstacle]struct{}
	pros      *stringSet
	reframing *stringSet
	trace     []string
}

func newMerger(base catalog.Skeleton) *merger {
	m := &merger{
		base:      base,
		cards:     newCardSet(base.WeeklyPlanCards),
		seenObs:   map[catalog.Obstacle]struct{}{},
		pros:      newStringSet(base.MotivationHints.Pros),
		reframing: newStringSet(base.MotivationHints.Reframing),
		trace:     append([]string{}, base.RulesTrace...),
	}
	m.addObstacles(base.Obstacles)
	return m
}

func (m *merger) addObstacles(in []catalog.Obstacle) {
	for _, o := range in {
		if _, ok := m.seenObs[o]; ok {
			continue
		}
		m.seenObs[o] = struct{}{}
		m.obstacles = append(m.obstacles, o)
	}
}

func (m *merger) apply(f catalog.Fragment) {
	if f.TodayAction != nil {
		ta := *f.TodayAction
		ta.Steps = append([]string{}, ta.Steps...)
		m.base.TodayAction = ta
	}
	if f.PrependCards {
		// walk backwards so the fragment's own order survives at the front
		for i := len(f.WeeklyPlanCards) - 1; i >= 0; i-- {
			m.cards.upsert(f.WeeklyPlanCards[i], true)
		}
	} else {
		for _, c := range f.WeeklyPlanCards {
			m.cards.upsert(c, false)
		}
	}
	m.addObstacles(f.Obstacles)
	m.pros.add(f.MotivationHints.Pros...)
	m.reframing.add(f.MotivationHints.Reframing...)
	m.trace = append(m.trace, f.RulesTrace...)
}

func (m *merger) skeleton() catalog.Skeleton {
	out := m.base
	out.WeeklyPlanCards = m.cards.list()
	out.Obstacles = append([]catalog.Obstacle{}, m.obstacles...)
	out.MotivationHints = catalog.MotivationHints{
		Pros:      m.pros.items,
		Reframing: m.reframing.items,
	}
	out.RulesTrace = m.trace
	return out
}
