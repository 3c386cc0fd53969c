// Package catalog provides the treatment catalog: the tracked metric
// definitions and the treatments an operator may apply.
package catalog

import (
	"fmt"
	"math"
	"os"
	"sort"

	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/security"
	"gopkg.in/yaml.v3"
)

// Catalog holds metric definitions and treatments
type Catalog struct {
	Metrics    map[string]model.Metric `json:"metrics" yaml:"metrics"`
	Treatments []model.Treatment       `json:"treatments" yaml:"treatments"`
}

// Default returns the built-in dataset for a type 2 diabetes patient
func Default() *Catalog {
	return &Catalog{
		Metrics: map[string]model.Metric{
			"glucose":       {Name: "Blood Glucose", Unit: "mg/dL", Baseline: 145, Target: 120},
			"bloodPressure": {Name: "Blood Pressure", Unit: "mmHg", Baseline: 128, Target: 120},
			"heartRate":     {Name: "Heart Rate", Unit: "bpm", Baseline: 78, Target: 70},
			"weight":        {Name: "Weight", Unit: "lbs", Baseline: 165, Target: 155},
			"activity":      {Name: "Activity Level", Unit: "min", Baseline: 45, Target: 70},
		},
		Treatments: []model.Treatment{
			{
				ID:              1,
				Name:            "Reduce Metformin Dosage",
				Type:            "Medication Adjustment",
				Description:     "Current glucose control is stable. Consider reducing from 1000mg to 850mg twice daily.",
				ExpectedImpact:  map[string]float64{"glucose": -15, "weight": 5},
				Priority:        "medium",
				Confidence:      89,
				ExpectedOutcome: "Maintain glucose control with reduced side effects",
				Timeline:        "Next 2 weeks",
				Evidence:        "Based on 12-week glucose trends and kidney function",
				Status:          "pending",
			},
			{
				ID:          2,
				Name:        "Increase Physical Activity",
				Type:        "Lifestyle Intervention",
				Description: "Add 15 minutes of moderate exercise 3x weekly to improve insulin sensitivity.",
				ExpectedImpact: map[string]float64{
					"glucose":       -25,
					"bloodPressure": -20,
					"heartRate":     -15,
					"weight":        -30,
					"activity":      40,
				},
				Priority:        "high",
				Confidence:      94,
				ExpectedOutcome: "10-15% improvement in glucose variability",
				Timeline:        "Start immediately",
				Evidence:        "Personalized activity model + cardiovascular capacity",
				Status:          "recommended",
			},
			{
				ID:              3,
				Name:            "Weekly Glucose Monitoring",
				Type:            "Monitoring Protocol",
				Description:     "Increase monitoring frequency to detect early signs of hypoglycemia.",
				ExpectedImpact:  map[string]float64{"glucose": -10},
				Priority:        "high",
				Confidence:      96,
				ExpectedOutcome: "Prevent hypoglycemic episodes",
				Timeline:        "Next 30 days",
				Evidence:        "Predictive model indicates 23% risk increase",
				Status:          "urgent",
			},
			{
				ID:              4,
				Name:            "Carbohydrate Timing Optimization",
				Type:            "Nutritional Guidance",
				Description:     "Adjust meal timing to align with medication peaks for better control.",
				ExpectedImpact:  map[string]float64{"glucose": -20, "weight": -10},
				Priority:        "low",
				Confidence:      72,
				ExpectedOutcome: "Smoother post-meal glucose curves",
				Timeline:        "Next 4 weeks",
				Evidence:        "Continuous glucose monitor patterns",
				Status:          "suggested",
			},
		},
	}
}

// LoadFile reads a YAML catalog from disk
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.WithCause(apperrors.ErrCatalogNotFound, err)
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrCatalogInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes the catalog as YAML
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks ids are positive and unique, names are set, impacts are
// finite and confidence is a percentage. Impact keys naming untracked metrics
// are allowed.
func (c *Catalog) Validate() error {
	if len(c.Metrics) == 0 {
		return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("no metrics defined"))
	}
	for key, m := range c.Metrics {
		if m.Name == "" {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("metric %q has no name", key))
		}
		if err := security.ValidateName(m.Name); err != nil {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("metric %q name: %w", key, err))
		}
	}

	seen := make(map[int]bool, len(c.Treatments))
	for _, t := range c.Treatments {
		if t.ID <= 0 {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("treatment %q has invalid id %d", t.Name, t.ID))
		}
		if seen[t.ID] {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("duplicate treatment id %d", t.ID))
		}
		seen[t.ID] = true

		if t.Name == "" {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("treatment %d has no name", t.ID))
		}
		if t.Confidence < 0 || t.Confidence > 100 {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("treatment %d confidence %d out of range", t.ID, t.Confidence))
		}
		for key, d := range t.ExpectedImpact {
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("treatment %d impact on %q is not a finite number", t.ID, key))
			}
		}
		if err := validateText(t); err != nil {
			return apperrors.WithCause(apperrors.ErrCatalogInvalid, fmt.Errorf("treatment %d %w", t.ID, err))
		}
	}
	return nil
}

// validateText screens the fields that reach reports and prompts
func validateText(t model.Treatment) error {
	for field, v := range map[string]string{"name": t.Name, "type": t.Type, "priority": t.Priority, "status": t.Status} {
		if err := security.ValidateName(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	for field, v := range map[string]string{
		"description":      t.Description,
		"expected_outcome": t.ExpectedOutcome,
		"timeline":         t.Timeline,
		"evidence":         t.Evidence,
	} {
		if err := security.ValidateText(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Treatment looks up a treatment by id
func (c *Catalog) Treatment(id int) (model.Treatment, bool) {
	for _, t := range c.Treatments {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return model.Treatment{}, false
}

var priorityRank = map[string]int{
	"high":   0,
	"medium": 1,
	"low":    2,
}

func rank(priority string) int {
	if r, ok := priorityRank[priority]; ok {
		return r
	}
	return len(priorityRank)
}

// Sorted returns the treatments ordered by priority, then id
func (c *Catalog) Sorted() []model.Treatment {
	out := make([]model.Treatment, len(c.Treatments))
	for i, t := range c.Treatments {
		out[i] = t.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i].Priority), rank(out[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UnknownImpactKeys lists, per treatment id, impact keys with no metric definition
func (c *Catalog) UnknownImpactKeys() map[int][]string {
	unknown := make(map[int][]string)
	for _, t := range c.Treatments {
		for key := range t.ExpectedImpact {
			if _, ok := c.Metrics[key]; !ok {
				unknown[t.ID] = append(unknown[t.ID], key)
			}
		}
		sort.Strings(unknown[t.ID])
	}
	return unknown
}

// NewModel creates a fresh model over the catalog's metric definitions
func (c *Catalog) NewModel(opts ...model.Option) *model.Model {
	return model.New(c.Metrics, opts...)
}
