package detect

import (
	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/core/signal"
)

// =============================================================================
// Built-in Rule Set
// =============================================================================

// rules is the static detection rule set, evaluated in declaration order.
// When two rules fire with equal scores the earlier declaration wins; this
// is the documented, deterministic tie-break (never map iteration order).
var rules = []Rule{
	{
		ID:        "docker",
		Framework: "Docker",
		Conditions: []Condition{
			{Signal: signal.File("Dockerfile"), Weight: 1.0},
		},
		Threshold: 1.0,
		Provider:  domain.ProviderDigitalOcean,
		Build: domain.BuildConfiguration{
			BuildCommand: "docker build .",
		},
	},
	{
		ID:        "nextjs",
		Framework: "Next.js",
		Conditions: []Condition{
			{Signal: signal.Dependency("next"), Weight: 0.85},
			{Signal: signal.Dir("app"), Weight: 0.1},
			{Signal: signal.Dir("pages"), Weight: 0.1},
			{Signal: signal.File("next.config.js"), Weight: 0.05},
			{Signal: signal.File("next.config.mjs"), Weight: 0.05},
		},
		Threshold: 0.85,
		Provider:  domain.ProviderDigitalOcean,
		Build: domain.BuildConfiguration{
			InstallCommand:  "npm install",
			BuildCommand:    "next build",
			OutputDirectory: ".next",
			StartCommand:    "next start",
		},
	},
	{
		ID:        "vite-react",
		Framework: "React (Vite)",
		Conditions: []Condition{
			{Signal: signal.Dependency("react"), Weight: 0.45},
			{Signal: signal.Dependency("vite"), Weight: 0.35},
			{Signal: signal.DevDependency("vite"), Weight: 0.35},
			{Signal: signal.File("vite.config.ts"), Weight: 0.1},
			{Signal: signal.File("vite.config.js"), Weight: 0.1},
		},
		Exclusions: []string{signal.Dependency("next")},
		Threshold:  0.7,
		Provider:   domain.ProviderDigitalOcean,
		Build: domain.BuildConfiguration{
			InstallCommand:  "npm install",
			BuildCommand:    "vite build",
			OutputDirectory: "dist",
		},
	},
	{
		ID:        "node-express",
		Framework: "Node.js",
		Conditions: []Condition{
			{Signal: signal.Dependency("express"), Weight: 0.6},
			{Signal: signal.Dependency("fastify"), Weight: 0.6},
			{Signal: signal.Script("start"), Weight: 0.1},
			{Signal: signal.EnvVar("PORT"), Weight: 0.05},
		},
		Exclusions: []string{signal.Dependency("next")},
		Threshold:  0.6,
		Provider:   domain.ProviderDigitalOcean,
		Build: domain.BuildConfiguration{
			InstallCommand: "npm install",
			StartCommand:   "npm start",
		},
	},
	{
		ID:        "go",
		Framework: "Go",
		Conditions: []Condition{
			{Signal: signal.File("go.mod"), Weight: 0.9},
			{Signal: signal.Dir("cmd"), Weight: 0.1},
		},
		Threshold: 0.9,
		Provider:  domain.ProviderHetzner,
		Build: domain.BuildConfiguration{
			BuildCommand: "go build -o app ./...",
			StartCommand: "./app",
		},
	},
	{
		ID:        "django",
		Framework: "Django",
		Conditions: []Condition{
			{Signal: signal.Dependency("django"), Weight: 0.55},
			{Signal: signal.File("manage.py"), Weight: 0.35},
			{Signal: signal.File("requirements.txt"), Weight: 0.1},
		},
		Threshold: 0.6,
		Provider:  domain.ProviderAWS,
		Build: domain.BuildConfiguration{
			InstallCommand: "pip install -r requirements.txt",
			StartCommand:   "python manage.py runserver 0.0.0.0:8000",
		},
	},
	{
		ID:        "flask",
		Framework: "Flask",
		Conditions: []Condition{
			{Signal: signal.Dependency("flask"), Weight: 0.6},
			{Signal: signal.File("requirements.txt"), Weight: 0.1},
			{Signal: signal.EnvVar("FLASK_APP"), Weight: 0.1},
		},
		Exclusions: []string{signal.Dependency("django")},
		Threshold:  0.6,
		Provider:   domain.ProviderHetzner,
		Build: domain.BuildConfiguration{
			InstallCommand: "pip install -r requirements.txt",
			StartCommand:   "flask run --host=0.0.0.0",
		},
	},
	{
		ID:        "static",
		Framework: "Static Site",
		Conditions: []Condition{
			{Signal: signal.File("index.html"), Weight: 0.6},
		},
		Exclusions: []string{
			signal.Manifest("package.json"),
			signal.File("Dockerfile"),
			signal.File("go.mod"),
		},
		Threshold: 0.6,
		Provider:  domain.ProviderDigitalOcean,
		Build: domain.BuildConfiguration{
			OutputDirectory: ".",
		},
	},
}

// Rules returns a copy of the built-in rule set, mainly for diagnostics.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
