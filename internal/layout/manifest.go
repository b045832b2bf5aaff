package layout

import (
	"bufio"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scriptoria/weaver/internal/model"
)

// yamlManifest mirrors the dublin-core-style resource-container manifest
// (manifest.yaml) fields the pipeline needs; unrecognized fields are
// ignored by yaml.v3's default strict-ness-off decoding.
type yamlManifest struct {
	DublinCore struct {
		Version string `yaml:"version"`
		Issued  string `yaml:"issued"`
	} `yaml:"dublin_core"`
	Projects []struct {
		Identifier string `yaml:"identifier"`
		Title      string `yaml:"title"`
		Sort       int    `yaml:"sort"`
	} `yaml:"projects"`
}

// jsonManifest mirrors the handful of resource containers that ship a
// manifest.json instead of YAML, with the same dublin_core/projects shape.
type jsonManifest struct {
	DublinCore struct {
		Version string `json:"version"`
		Issued  string `json:"issued"`
	} `json:"dublin_core"`
	Projects []struct {
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
		Sort       int    `json:"sort"`
	} `json:"projects"`
}

// parseYAMLManifest parses manifest.yaml content into a model.Manifest.
func parseYAMLManifest(data []byte) (*model.Manifest, error) {
	var raw yamlManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := &model.Manifest{
		Type:     model.ManifestYAML,
		Version:  raw.DublinCore.Version,
		Issued:   raw.DublinCore.Issued,
		Projects: map[string]model.ProjectEntry{},
	}
	for _, p := range raw.Projects {
		m.Projects[strings.ToLower(p.Identifier)] = model.ProjectEntry{
			Identifier: p.Identifier,
			Title:      p.Title,
			Sort:       p.Sort,
		}
	}
	return m, nil
}

// parseJSONManifest parses manifest.json content into a model.Manifest.
func parseJSONManifest(data []byte) (*model.Manifest, error) {
	var raw jsonManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := &model.Manifest{
		Type:     model.ManifestJSON,
		Version:  raw.DublinCore.Version,
		Issued:   raw.DublinCore.Issued,
		Projects: map[string]model.ProjectEntry{},
	}
	for _, p := range raw.Projects {
		m.Projects[strings.ToLower(p.Identifier)] = model.ProjectEntry{
			Identifier: p.Identifier,
			Title:      p.Title,
			Sort:       p.Sort,
		}
	}
	return m, nil
}

// parseTXTManifest parses the legacy line-oriented `key: value` manifest
// dialect with a hand-rolled line scanner.
func parseTXTManifest(data []byte) (*model.Manifest, error) {
	m := &model.Manifest{Type: model.ManifestTXT, Projects: map[string]model.ProjectEntry{}}
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.ToLower(key))
		val = strings.TrimSpace(val)
		switch key {
		case "version":
			m.Version = val
		case "issued", "date_modified", "mod":
			m.Issued = val
		}
	}
	return m, sc.Err()
}

func manifestTitleNumber(id string, sort int, title string) (string, int) {
	if title == "" {
		title = BookTitle(id)
	}
	if sort == 0 {
		sort = BookNumber(id)
	}
	return title, sort
}

func parseIntOr(s string, dflt int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return dflt
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
