// Package repo fetches repositories and extracts detection signals
// from their checkouts. This is part of the Imperative Shell.
package repo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/artpar/launchpad/internal/core/signal"
)

// manifestFiles are the dependency manifests the extractor reads. The
// set is fixed; nothing outside it is ever opened.
var manifestFiles = []string{
	"package.json",
	"go.mod",
	"requirements.txt",
	"pyproject.toml",
	"Gemfile",
	"Cargo.toml",
}

// markerFiles are recorded by presence only.
var markerFiles = []string{
	"Dockerfile",
	"next.config.js",
	"next.config.mjs",
	"vite.config.js",
	"vite.config.ts",
	"index.html",
	"manage.py",
}

// composeFiles are tried in order; the first one present is parsed.
var composeFiles = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yaml",
}

// maxManifestSize bounds how much of any single file is read.
const maxManifestSize = 1 << 20

// Extract walks the top level of a checkout and builds a signal bag.
// Unparseable files produce caveats, never errors; detection degrades
// instead of failing.
func Extract(ctx context.Context, root string) (signal.Bag, error) {
	b := signal.NewBuilder()

	entries, err := os.ReadDir(root)
	if err != nil {
		return signal.Bag{}, err
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") && entry.Name() != "node_modules" {
			b.Mark(signal.Dir(entry.Name()))
		}
	}

	for _, name := range markerFiles {
		if fileExists(root, name) {
			b.Mark(signal.File(name))
		}
	}

	for _, name := range manifestFiles {
		data, ok := readBounded(root, name)
		if !ok {
			continue
		}
		b.Mark(signal.File(name))
		b.Mark(signal.Manifest(name))

		switch name {
		case "package.json":
			extractPackageJSON(b, data)
		case "requirements.txt":
			extractRequirements(b, data)
		}
	}

	for _, name := range composeFiles {
		data, ok := readBounded(root, name)
		if !ok {
			continue
		}
		b.Mark(signal.File(name))
		extractCompose(ctx, b, name, data)
		break
	}

	if data, ok := readBounded(root, ".env.example"); ok {
		extractEnvFile(b, data)
	}

	return b.Build(), nil
}

func fileExists(root, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && info.Mode().IsRegular()
}

func readBounded(root, name string) ([]byte, bool) {
	path := filepath.Join(root, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxManifestSize {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// packageManifest is the subset of package.json the detector cares about.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

func extractPackageJSON(b *signal.Builder, data []byte) {
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		b.Caveat("package.json present but not parseable")
		return
	}
	for dep := range manifest.Dependencies {
		b.Mark(signal.Dependency(dep))
	}
	for dep := range manifest.DevDependencies {
		b.Mark(signal.DevDependency(dep))
	}
	for script := range manifest.Scripts {
		b.Mark(signal.Script(script))
	}
}

// extractRequirements pulls package names from a pip requirements file.
// Names are lowercased; version pins and markers are stripped.
func extractRequirements(b *signal.Builder, data []byte) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name := line
		for _, sep := range []string{"==", ">=", "<=", "~=", ">", "<", "[", ";", " "} {
			if idx := strings.Index(name, sep); idx >= 0 {
				name = name[:idx]
			}
		}
		if name != "" {
			b.Mark(signal.Dependency(strings.ToLower(name)))
		}
	}
}

func extractCompose(ctx context.Context, b *signal.Builder, filename string, data []byte) {
	var dict map[string]any
	if err := yaml.Unmarshal(data, &dict); err != nil || dict == nil {
		b.Caveat(filename + " present but not parseable")
		return
	}

	project, err := loader.LoadWithContext(ctx, composetypes.ConfigDetails{
		ConfigFiles: []composetypes.ConfigFile{
			{Content: data, Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("launchpad-scan", false)
		opts.SkipValidation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		b.Caveat(filename + " present but not parseable")
		return
	}

	b.Mark(signal.Manifest(filename))
	for _, svc := range project.Services {
		for key := range svc.Environment {
			b.Mark(signal.EnvVar(key))
		}
	}
}

func extractEnvFile(b *signal.Builder, data []byte) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "="); idx > 0 {
			b.Mark(signal.EnvVar(strings.TrimSpace(line[:idx])))
		}
	}
}
