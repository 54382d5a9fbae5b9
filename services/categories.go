package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"yclients-scraper/models"
)

// CategoryRules maps resource categories to the keywords that imply them.
// Venue phrasing varies, so the table is configuration, not code: it can be
// replaced wholesale via a YAML file.
type CategoryRules struct {
	Categories map[string][]string `yaml:"categories"`
}

// defaultCategoryRules covers the venues the scraper was built against.
func defaultCategoryRules() *CategoryRules {
	return &CategoryRules{
		Categories: map[string][]string{
			"PADEL":  {"padel", "падел"},
			"TENNIS": {"tennis", "теннис"},
			"SQUASH": {"squash", "сквош"},
		},
	}
}

// LoadCategoryRules reads keyword rules from a YAML file, or returns the
// built-in defaults when path is empty.
func LoadCategoryRules(path string) (*CategoryRules, error) {
	if path == "" {
		return defaultCategoryRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	var rules CategoryRules
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("parse category rules: %w", err)
	}
	if len(rules.Categories) == 0 {
		return nil, fmt.Errorf("category rules file %s defines no categories", path)
	}
	return &rules, nil
}

// Match returns the category whose keyword occurs in the given venue/service
// text, or CourtTypeUnknown when nothing matches. A miss is never an error.
func (r *CategoryRules) Match(texts ...string) string {
	joined := strings.ToLower(strings.Join(texts, " "))
	for category, keywords := range r.Categories {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(joined, strings.ToLower(kw)) {
				return category
			}
		}
	}
	return models.CourtTypeUnknown
}
