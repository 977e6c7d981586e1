// Package nutrition derives daily-value breakdowns from record metadata.
package nutrition

import (
	"errors"
	"math"

	"github.com/pcarver/ragu/internal/store"
)

// ErrNotFound is returned when no record matches the requested name.
var ErrNotFound = errors.New("menu not found")

// Daily reference values, based on a 2000 kcal diet.
const (
	DailyCalories = 2000.0
	DailyProtein  = 50.0
	DailyFat      = 70.0
	DailyCarbs    = 300.0
)

// Metadata keys holding nutritional values. Records loaded without them
// simply produce zero entries; the analyzer never fails on missing keys.
const (
	keyCalories = "calories"
	keyProtein  = "protein"
	keyFat      = "fat"
	keyCarbs    = "carbs"
	keyFiber    = "fiber"
	keySalt     = "salt"
)

// Nutrient is one nutritional value with its share of the daily reference.
type Nutrient struct {
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	DailyPercent float64 `json:"daily_percent"`
}

// Report is the complete nutritional breakdown for one menu record.
type Report struct {
	Menu       string         `json:"menu"`
	Calories   Nutrient       `json:"calories"`
	Protein    Nutrient       `json:"protein"`
	Fat        Nutrient       `json:"fat"`
	Carbs      Nutrient       `json:"carbs"`
	Fiber      float64        `json:"fiber"`
	Salt       float64        `json:"salt"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Analyzer looks up records and computes their daily-value breakdown.
type Analyzer struct {
	store      store.Store
	collection *store.Collection
}

// New creates an Analyzer over the given collection.
func New(st store.Store, coll *store.Collection) *Analyzer {
	return &Analyzer{store: st, collection: coll}
}

// ByName finds the first record whose key contains name (case-insensitive)
// and returns its nutritional report.
func (a *Analyzer) ByName(name string) (*Report, error) {
	rec, err := a.store.FindByKeyLike(a.collection.ID, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return FromRecord(rec), nil
}

// FromRecord builds a report from a record's metadata. Nutritional keys are
// consumed into typed fields; everything else lands in Attributes.
func FromRecord(rec *store.Record) *Report {
	report := &Report{
		Menu:     rec.Key,
		Calories: nutrient(rec.Metadata, keyCalories, "kcal", DailyCalories),
		Protein:  nutrient(rec.Metadata, keyProtein, "g", DailyProtein),
		Fat:      nutrient(rec.Metadata, keyFat, "g", DailyFat),
		Carbs:    nutrient(rec.Metadata, keyCarbs, "g", DailyCarbs),
		Fiber:    numberValue(rec.Metadata, keyFiber),
		Salt:     numberValue(rec.Metadata, keySalt),
	}

	consumed := map[string]bool{
		keyCalories: true, keyProtein: true, keyFat: true,
		keyCarbs: true, keyFiber: true, keySalt: true,
	}
	for k, v := range rec.Metadata {
		if consumed[k] {
			continue
		}
		if report.Attributes == nil {
			report.Attributes = make(map[string]any)
		}
		report.Attributes[k] = v
	}

	return report
}

func nutrient(metadata map[string]any, key, unit string, daily float64) Nutrient {
	amount := numberValue(metadata, key)
	return Nutrient{
		Amount:       amount,
		Unit:         unit,
		DailyPercent: round1(amount / daily * 100),
	}
}

// numberValue reads a numeric metadata value. JSON decoding yields float64
// for all numbers; other types count as zero.
func numberValue(metadata map[string]any, key string) float64 {
	if metadata == nil {
		return 0
	}
	switch v := metadata[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
