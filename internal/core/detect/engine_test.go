package detect

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/core/signal"
)

// =============================================================================
// Scenario Tests
// =============================================================================

func TestDetect_NextJS(t *testing.T) {
	bag := signal.NewBuilder().
		Mark(signal.Dependency("next")).
		Mark(signal.Dir("app")).
		Build()

	result := Detect(bag)

	assert.Equal(t, "Next.js", result.Framework)
	assert.GreaterOrEqual(t, result.Confidence, 0.9)
	assert.Equal(t, "next build", result.Build.BuildCommand)

	require.NotEmpty(t, result.Providers)
	first := result.Providers[0]
	assert.Equal(t, domain.ProviderDigitalOcean, first.Provider)
	assert.Contains(t, first.Rationale, "framework affinity")
}

func TestDetect_DockerfileOnly(t *testing.T) {
	bag := signal.NewBuilder().
		Mark(signal.File("Dockerfile")).
		Build()

	result := Detect(bag)

	assert.Equal(t, "Docker", result.Framework)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestDetect_DockerBeatsNext(t *testing.T) {
	// Docker scores 1.0, Next.js 0.95: strictly greater score wins.
	bag := signal.NewBuilder().
		Mark(signal.File("Dockerfile")).
		Mark(signal.Dependency("next")).
		Mark(signal.Dir("app")).
		Build()

	result := Detect(bag)
	assert.Equal(t, "Docker", result.Framework)
}

func TestDetect_ViteReact(t *testing.T) {
	bag := signal.NewBuilder().
		Mark(signal.Dependency("react")).
		Mark(signal.DevDependency("vite")).
		Mark(signal.File("vite.config.ts")).
		Build()

	result := Detect(bag)

	assert.Equal(t, "React (Vite)", result.Framework)
	assert.Equal(t, "dist", result.Build.OutputDirectory)
}

func TestDetect_ExclusionDisqualifies(t *testing.T) {
	// React + Vite signals present, but the next dependency excludes the
	// vite-react rule regardless of its accumulated score.
	bag := signal.NewBuilder().
		Mark(signal.Dependency("react")).
		Mark(signal.Dependency("vite")).
		Mark(signal.DevDependency("vite")).
		Mark(signal.File("vite.config.ts")).
		Mark(signal.Dependency("next")).
		Build()

	result := Detect(bag)
	assert.Equal(t, "Next.js", result.Framework)
}

// =============================================================================
// Fallback Tests
// =============================================================================

func TestDetect_Fallback_GenericManifest(t *testing.T) {
	bag := signal.NewBuilder().
		Mark(signal.Manifest("package.json")).
		Mark(signal.Script("start")).
		Build()

	result := Detect(bag)

	assert.Equal(t, "Generic Runtime", result.Framework)
	assert.LessOrEqual(t, result.Confidence, 0.6)
	assert.Equal(t, "npm start", result.Build.StartCommand)
}

func TestDetect_Fallback_StaticSite(t *testing.T) {
	result := Detect(signal.NewBuilder().Build())

	assert.Equal(t, "Static Site", result.Framework)
	assert.LessOrEqual(t, result.Confidence, 0.6)
	assert.Equal(t, ".", result.Build.OutputDirectory)
}

func TestDetect_CaveatsCarriedThrough(t *testing.T) {
	bag := signal.NewBuilder().
		Mark(signal.File("Dockerfile")).
		Caveat("package.json: invalid JSON, treated as absent").
		Build()

	result := Detect(bag)
	assert.Equal(t, []string{"package.json: invalid JSON, treated as absent"}, result.Caveats)
}

// =============================================================================
// Properties
// =============================================================================

// genBag generates bags from a pool of realistic signals.
func genBag() gopter.Gen {
	pool := []string{
		signal.Dependency("next"),
		signal.Dependency("react"),
		signal.Dependency("vite"),
		signal.DevDependency("vite"),
		signal.Dependency("express"),
		signal.Dependency("django"),
		signal.Dependency("flask"),
		signal.File("Dockerfile"),
		signal.File("go.mod"),
		signal.File("index.html"),
		signal.File("manage.py"),
		signal.File("requirements.txt"),
		signal.Dir("app"),
		signal.Dir("pages"),
		signal.Dir("cmd"),
		signal.Script("start"),
		signal.Script("build"),
		signal.EnvVar("PORT"),
		signal.EnvVar("DATABASE_URL"),
		signal.Manifest("package.json"),
	}
	return gen.SliceOf(gen.IntRange(0, len(pool)-1)).Map(func(indexes []int) signal.Bag {
		b := signal.NewBuilder()
		for _, i := range indexes {
			b.Mark(pool[i])
		}
		return b.Build()
	})
}

func TestDetect_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("detect is pure: identical input yields identical output", prop.ForAll(
		func(bag signal.Bag) bool {
			return reflect.DeepEqual(Detect(bag), Detect(bag))
		},
		genBag(),
	))

	properties.Property("confidence is clamped to [0,1]", prop.ForAll(
		func(bag signal.Bag) bool {
			c := Detect(bag).Confidence
			return c >= 0 && c <= 1
		},
		genBag(),
	))

	properties.Property("a rule with a satisfied exclusion never fires", prop.ForAll(
		func(bag signal.Bag) bool {
			result := Detect(bag)
			for _, rule := range Rules() {
				if rule.ID != result.RuleID {
					continue
				}
				for _, excl := range rule.Exclusions {
					if bag.Has(excl) {
						return false
					}
				}
			}
			return true
		},
		genBag(),
	))

	properties.Property("providers are sorted descending by score", prop.ForAll(
		func(bag signal.Bag) bool {
			providers := Detect(bag).Providers
			for i := 1; i < len(providers); i++ {
				if providers[i].Score > providers[i-1].Score {
					return false
				}
			}
			return true
		},
		genBag(),
	))

	properties.TestingRun(t)
}
