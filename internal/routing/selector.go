package routing

import (
	"sort"

	"haven/internal/partner"
	"haven/pkg/domain"
)

// Select picks the best partner for a jurisdiction, or nil when none covers
// it. Pure function over already-fetched partners; no store access.
//
// Ranking: a subdivision-exact match ("US-CA" in the partner's list) beats a
// country-level match ("US" in the list); within equal specificity the lower
// Priority value wins. State-level responders are assumed more contextually
// appropriate than national fallbacks, and explicit priority is the
// tiebreaker administrators control. Partner id breaks remaining ties so
// selection stays deterministic.
func Select(jurisdiction domain.Jurisdiction, partners []partner.CrisisPartner) *partner.CrisisPartner {
	type ranked struct {
		p     partner.CrisisPartner
		level partner.CoverageLevel
	}
	var candidates []ranked
	for _, p := range partners {
		if !p.Active {
			continue
		}
		if level := p.Covers(jurisdiction); level != partner.CoverageNone {
			candidates = append(candidates, ranked{p: p, level: level})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].level != candidates[j].level {
			return candidates[i].level > candidates[j].level
		}
		if candidates[i].p.Priority != candidates[j].p.Priority {
			return candidates[i].p.Priority < candidates[j].p.Priority
		}
		return candidates[i].p.ID.String() < candidates[j].p.ID.String()
	})
	best := candidates[0].p
	return &best
}
