package detect

import (
	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/core/signal"
)

// =============================================================================
// Detection
// =============================================================================

// Detect evaluates the rule set against a signal bag and returns the winning
// framework recommendation plus a ranked provider list. It is pure and
// deterministic: identical bags produce identical results, including
// rationale strings and tie-break winners.
func Detect(bag signal.Bag) Result {
	caveats := bag.Caveats()

	var winner *Rule
	var winnerScore float64

	for i := range rules {
		rule := &rules[i]
		score, disqualified := evaluateRule(rule, bag)
		if disqualified || score < rule.Threshold {
			continue
		}
		// Strictly greater wins; equal scores keep the earlier declaration.
		if winner == nil || score > winnerScore {
			winner = rule
			winnerScore = score
		}
	}

	if winner == nil {
		return fallbackResult(bag, caveats)
	}

	needs := InferNeeds(bag, winner.Framework)
	return Result{
		Framework:  winner.Framework,
		Confidence: clamp01(winnerScore),
		RuleID:     winner.ID,
		Build:      winner.Build,
		Needs:      needs,
		Providers:  RankProviders(winner.Framework, needs),
		Caveats:    caveats,
	}
}

// evaluateRule accumulates the weights of satisfied conditions. A rule with
// any satisfied exclusion is disqualified regardless of score.
func evaluateRule(rule *Rule, bag signal.Bag) (score float64, disqualified bool) {
	for _, excl := range rule.Exclusions {
		if bag.Has(excl) {
			return 0, true
		}
	}
	for _, cond := range rule.Conditions {
		if bag.Has(cond.Signal) {
			score += cond.Weight
		}
	}
	return score, false
}

// fallbackResult produces a low-confidence generic recommendation when no
// rule fires: a parsed manifest suggests a generic runtime, otherwise the
// repository is assumed to be a static site.
func fallbackResult(bag signal.Bag, caveats []string) Result {
	hasManifest := false
	for _, key := range bag.Keys() {
		if len(key) > len(signal.PrefixManifest) && key[:len(signal.PrefixManifest)] == signal.PrefixManifest {
			hasManifest = true
			break
		}
	}

	if hasManifest {
		framework := "Generic Runtime"
		build := domain.BuildConfiguration{}
		if bag.Has(signal.Manifest("package.json")) {
			build.InstallCommand = "npm install"
			if bag.Has(signal.Script("build")) {
				build.BuildCommand = "npm run build"
			}
			if bag.Has(signal.Script("start")) {
				build.StartCommand = "npm start"
			}
		}
		needs := InferNeeds(bag, framework)
		return Result{
			Framework:  framework,
			Confidence: 0.5,
			Build:      build,
			Needs:      needs,
			Providers:  RankProviders(framework, needs),
			Caveats:    caveats,
		}
	}

	framework := "Static Site"
	needs := InferNeeds(bag, framework)
	return Result{
		Framework:  framework,
		Confidence: 0.3,
		Build:      domain.BuildConfiguration{OutputDirectory: "."},
		Needs:      needs,
		Providers:  RankProviders(framework, needs),
		Caveats:    caveats,
	}
}

// =============================================================================
// Needs Inference
// =============================================================================

// databaseSignals are the signals treated as evidence of a database requirement.
var databaseSignals = []string{
	signal.EnvVar("DATABASE_URL"),
	signal.EnvVar("POSTGRES_URL"),
	signal.EnvVar("MYSQL_URL"),
	signal.EnvVar("MONGODB_URI"),
	signal.Dependency("pg"),
	signal.Dependency("mysql2"),
	signal.Dependency("mongoose"),
	signal.Dependency("prisma"),
	signal.Dependency("sqlalchemy"),
	signal.Dependency("psycopg2"),
}

// staticFrameworks do not require a long-running process.
var staticFrameworks = map[string]bool{
	"Static Site":  true,
	"React (Vite)": true,
}

// InferNeeds derives the infrastructure requirements from the signal bag and
// the detected framework.
func InferNeeds(bag signal.Bag, framework string) Needs {
	needs := Needs{}
	for _, s := range databaseSignals {
		if bag.Has(s) {
			needs.Database = true
			break
		}
	}
	if staticFrameworks[framework] {
		needs.StaticOnly = true
	} else {
		needs.LongRunning = true
	}
	return needs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
