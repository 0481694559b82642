package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/launchpad/internal/core/domain"
)

// =============================================================================
// Provider Catalog
// =============================================================================

// providerProfile captures how well a provider serves each framework and
// which platform capabilities it offers.
type providerProfile struct {
	provider        domain.ProviderType
	affinity        map[string]float64 // by framework name
	defaultAffinity float64
	managedDatabase bool
	longRunning     bool
	staticHosting   bool
	performance     float64
	costTier        CostTier
}

// catalog is the static provider catalog, in declaration order. Equal ranking
// scores keep this order (stable sort), mirroring the rule tie-break policy.
var catalog = []providerProfile{
	{
		provider: domain.ProviderDigitalOcean,
		affinity: map[string]float64{
			"Next.js":         0.95,
			"React (Vite)":    0.9,
			"Node.js":         0.9,
			"Static Site":     0.9,
			"Docker":          0.85,
			"Go":              0.8,
			"Django":          0.8,
			"Flask":           0.8,
			"Generic Runtime": 0.8,
		},
		defaultAffinity: 0.7,
		managedDatabase: true,
		longRunning:     true,
		staticHosting:   true,
		performance:     0.8,
		costTier:        CostMedium,
	},
	{
		provider: domain.ProviderHetzner,
		affinity: map[string]float64{
			"Docker":          0.9,
			"Go":              0.85,
			"Node.js":         0.75,
			"Django":          0.75,
			"Flask":           0.75,
			"Generic Runtime": 0.7,
			"Next.js":         0.6,
			"React (Vite)":    0.5,
			"Static Site":     0.5,
		},
		defaultAffinity: 0.6,
		managedDatabase: false,
		longRunning:     true,
		staticHosting:   false,
		performance:     0.85,
		costTier:        CostLow,
	},
	{
		provider: domain.ProviderAWS,
		affinity: map[string]float64{
			"Docker":          0.85,
			"Go":              0.8,
			"Django":          0.8,
			"Node.js":         0.8,
			"Generic Runtime": 0.75,
			"Next.js":         0.7,
			"React (Vite)":    0.6,
			"Static Site":     0.6,
			"Flask":           0.75,
		},
		defaultAffinity: 0.65,
		managedDatabase: true,
		longRunning:     true,
		staticHosting:   true,
		performance:     0.9,
		costTier:        CostHigh,
	},
}

// Ranking weights per the scoring formula: framework affinity 0.4,
// feature-requirement match 0.3, performance profile 0.2, cost 0.1.
const (
	weightAffinity    = 0.4
	weightFeatures    = 0.3
	weightPerformance = 0.2
	weightCost        = 0.1
)

// =============================================================================
// Ranking
// =============================================================================

// RankProviders scores every known provider against the detected framework
// and inferred needs. The result is sorted descending by score; each
// candidate carries a rationale naming the weighted terms that contributed.
func RankProviders(framework string, needs Needs) []ProviderCandidate {
	candidates := make([]ProviderCandidate, 0, len(catalog))

	for _, p := range catalog {
		affinity, ok := p.affinity[framework]
		if !ok {
			affinity = p.defaultAffinity
		}

		features, missing := featureMatch(p, needs)
		cost := costMatch(p.costTier, needs.CostBias)

		score := weightAffinity*affinity +
			weightFeatures*features +
			weightPerformance*p.performance +
			weightCost*cost

		candidates = append(candidates, ProviderCandidate{
			Provider:  p.provider,
			Score:     round2(score),
			Tier:      tierFor(score),
			CostTier:  p.costTier,
			Rationale: buildRationale(p, framework, affinity, features, missing, cost),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// featureMatch returns the fraction of required capabilities the provider
// offers, plus the names of missing ones. With no requirements it is 1.
func featureMatch(p providerProfile, needs Needs) (float64, []string) {
	required, met := 0, 0
	var missing []string

	check := func(name string, needed, offered bool) {
		if !needed {
			return
		}
		required++
		if offered {
			met++
		} else {
			missing = append(missing, name)
		}
	}
	check("managed database", needs.Database, p.managedDatabase)
	check("long-running process", needs.LongRunning, p.longRunning)
	check("static hosting", needs.StaticOnly, p.staticHosting)

	if required == 0 {
		return 1, nil
	}
	return float64(met) / float64(required), missing
}

// costMatch scores the provider's cost tier against the preference. Without
// a preference cheaper tiers score higher.
func costMatch(tier, bias CostTier) float64 {
	if bias == "" {
		switch tier {
		case CostLow:
			return 1.0
		case CostMedium:
			return 0.6
		default:
			return 0.3
		}
	}
	if tier == bias {
		return 1.0
	}
	// Adjacent tiers get partial credit.
	if (tier == CostMedium) || (bias == CostMedium) {
		return 0.5
	}
	return 0
}

func tierFor(score float64) SuitabilityTier {
	switch {
	case score >= 0.85:
		return TierExcellent
	case score >= 0.7:
		return TierGood
	case score >= 0.5:
		return TierFair
	default:
		return TierPoor
	}
}

// buildRationale assembles the human-readable explanation from the weighted
// terms that contributed to the score.
func buildRationale(p providerProfile, framework string, affinity, features float64, missing []string, cost float64) string {
	parts := make([]string, 0, 4)

	switch {
	case affinity >= 0.85:
		parts = append(parts, fmt.Sprintf("framework affinity: first-class %s support", framework))
	case affinity >= 0.7:
		parts = append(parts, fmt.Sprintf("framework affinity: solid %s support", framework))
	default:
		parts = append(parts, fmt.Sprintf("framework affinity: %s runs but is not a primary target", framework))
	}

	if len(missing) > 0 {
		parts = append(parts, "feature match: missing "+strings.Join(missing, ", "))
	} else if features >= 1 {
		parts = append(parts, "feature match: all required capabilities available")
	}

	if p.performance >= 0.85 {
		parts = append(parts, "performance: high platform performance profile")
	}

	parts = append(parts, fmt.Sprintf("cost: %s tier", p.costTier))
	return strings.Join(parts, "; ")
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
