package timeline

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// LinkTable maps stage names to navigation targets. Unrecognized names fall
// back to the generic roadmap link with the stage pre-selected by query.
type LinkTable map[string]models.StageLink

// Resolve returns the link for stageName, or the generic fallback.
func (t LinkTable) Resolve(stageName string) models.StageLink {
	if link, ok := t[stageName]; ok {
		return link
	}
	return models.StageLink{
		URL:   "/roadmap?stage=" + url.QueryEscape(stageName),
		Label: stageName,
	}
}

// DefaultLinks returns the built-in stage link table.
func DefaultLinks() LinkTable {
	return LinkTable{
		"Idea Submission": {
			URL: "/ideas/submit", Label: "Review Submission",
		},
		"Initial Evaluation": {
			URL: "/evaluation/initial", Label: "Evaluation Status",
		},
		"Systematic Planning / Business Plan Preparation": {
			URL: "/business-model", Label: "Business Model Canvas",
		},
		"Advanced Evaluation Before Funding": {
			URL: "/evaluation/advanced", Label: "Evaluation Status",
		},
		"Funding": {
			URL: "/wallet", Label: "Funding & Wallet",
		},
		"Execution and Development": {
			URL: "/meetings", Label: "Follow-up Meetings",
		},
		"Launch": {
			URL: "/roadmap?stage=Launch", Label: "Launch Checklist",
		},
		"Post-Launch Follow-up": {
			URL: "/meetings", Label: "Follow-up Meetings",
		},
		"Project Stabilization / Platform Separation": {
			URL: "/roadmap?stage=Project+Stabilization+%2F+Platform+Separation", Label: "Separation Checklist",
		},
	}
}

type linksFile struct {
	Stages map[string]struct {
		URL   string `yaml:"url"`
		Label string `yaml:"label"`
	} `yaml:"stages"`
}

// LoadLinks reads a YAML link override file and overlays it on the defaults,
// so deployments can repoint stage deep-links without a rebuild.
func LoadLinks(path string) (LinkTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	var parsed linksFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse links file: %w", err)
	}
	table := DefaultLinks()
	for name, link := range parsed.Stages {
		if link.URL == "" {
			return nil, fmt.Errorf("links file: stage %q has no url", name)
		}
		label := link.Label
		if label == "" {
			label = name
		}
		table[name] = models.StageLink{URL: link.URL, Label: label}
	}
	return table, nil
}
