package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/carelink/carelink-api/internal/model"
)

// historyWindow bounds cross-category correlation. The current event's
// own timestamp is "now".
const historyWindow = 48 * time.Hour

// HistoryLookup fetches the most recent prior submission of a category
// for a patient. Implementations return nil when no record exists.
type HistoryLookup interface {
	Latest(ctx context.Context, category string, patientID int64, now time.Time) (*model.SymptomRecord, error)
}

// Classifier maps one symptom submission, plus recent history of selected
// other categories, to a severity level. It is pure given the lookup.
type Classifier struct {
	history HistoryLookup
}

func New(history HistoryLookup) *Classifier {
	return &Classifier{history: history}
}

// Classify returns LevelAlert when an alert rule for the category fires,
// LevelNormal otherwise. Categories with no rules always classify normal.
func (c *Classifier) Classify(ctx context.Context, category string, p model.SymptomPayload, patientID int64, now time.Time) (int, error) {
	switch category {
	case model.CategoryAchesPain:
		return level(classifyAchesPain(p)), nil
	case model.CategoryAppetite:
		return level(in(p.Level, "18c", "18d")), nil
	case model.CategoryFalls:
		return level(p.Falls == "Yes"), nil
	case model.CategoryFatigue:
		return level(p.Level == "20d"), nil
	case model.CategoryLegSwelling:
		return level(in(p.Level, "39b", "39c")), nil
	case model.CategoryLightheadedness:
		return level(classifyLightheadedness(p)), nil
	case model.CategoryNausea:
		return level(p.Frequency == "15d" || p.Level == "16c"), nil
	case model.CategoryFever:
		return c.classifyFever(ctx, p, patientID, now)
	case model.CategoryShortnessOfBreath:
		return c.classifyShortnessOfBreath(ctx, p, patientID, now)
	case model.CategoryUlcers:
		return c.classifyUlcers(ctx, p, patientID, now)
	case model.CategoryChestPain:
		return c.classifyChestPain(ctx, p, patientID, now)
	default:
		return model.LevelNormal, nil
	}
}

func level(alert bool) int {
	if alert {
		return model.LevelAlert
	}
	return model.LevelNormal
}

// in matches opaque answer tokens by equality only.
func in(token string, set ...string) bool {
	for _, s := range set {
		if token == s {
			return true
		}
	}
	return false
}

// Pain scales expose tokens "1".."10"; thresholds are enumerated sets so
// tokens stay uninterpreted.
var (
	painSevenPlus = []string{"7", "8", "9", "10"}
	painFourPlus  = []string{"4", "5", "6", "7", "8", "9", "10"}
)

func classifyAchesPain(p model.SymptomPayload) bool {
	if in(p.Level, painSevenPlus...) {
		return true
	}
	return in(p.Level, painFourPlus...) && in(p.Frequency, "24c", "24d")
}

func classifyLightheadedness(p model.SymptomPayload) bool {
	if in(p.Frequency, "29d", "29e") {
		return true
	}
	return in(p.Level, "Vision impairment/greying out", "Near passing out", "Loss of consciousness")
}

// recent returns the latest record of category within the history window
// before now, or nil.
func (c *Classifier) recent(ctx context.Context, category string, patientID int64, now time.Time) (*model.SymptomRecord, error) {
	rec, err := c.history.Latest(ctx, category, patientID, now)
	if err != nil {
		return nil, fmt.Errorf("history lookup for %s failed: %w", category, err)
	}
	if rec == nil || now.Sub(rec.At) > historyWindow {
		return nil, nil
	}
	return rec, nil
}

func (c *Classifier) classifyFever(ctx context.Context, p model.SymptomPayload, patientID int64, now time.Time) (int, error) {
	if in(p.Level, "12c", "12d") || p.Frequency == "13c" {
		return model.LevelAlert, nil
	}
	if p.Level == "12b" {
		rec, err := c.recent(ctx, model.CategoryUlcers, patientID, now)
		if err != nil {
			return 0, err
		}
		if rec != nil && rec.Payload.Ulcers == "Yes" {
			return model.LevelAlert, nil
		}
	}
	return model.LevelNormal, nil
}

func (c *Classifier) classifyShortnessOfBreath(ctx context.Context, p model.SymptomPayload, patientID int64, now time.Time) (int, error) {
	if in(p.Level, "10c", "10d") {
		return model.LevelAlert, nil
	}
	if p.Level == "10b" {
		rec, err := c.recent(ctx, model.CategoryChestPain, patientID, now)
		if err != nil {
			return 0, err
		}
		if rec != nil && in(rec.Payload.Frequency, "8d", "8e") {
			return model.LevelAlert, nil
		}
	}
	return model.LevelNormal, nil
}

func (c *Classifier) classifyUlcers(ctx context.Context, p model.SymptomPayload, patientID int64, now time.Time) (int, error) {
	if in(p.Appearance, "37c", "37d") {
		return model.LevelAlert, nil
	}
	if p.Ulcers == "Yes" {
		rec, err := c.recent(ctx, model.CategoryFever, patientID, now)
		if err != nil {
			return 0, err
		}
		if rec != nil && in(rec.Payload.Level, "12b", "12c", "12d") {
			return model.LevelAlert, nil
		}
	}
	return model.LevelNormal, nil
}

func (c *Classifier) classifyChestPain(ctx context.Context, p model.SymptomPayload, patientID int64, now time.Time) (int, error) {
	highPain := in(p.Level, "4", "5", "6")
	lowPain := in(p.Level, "1", "2", "3")

	switch {
	case p.RecentPain == "1a" && highPain:
		return model.LevelAlert, nil
	case in(p.RecentPain, "1b", "1c") && highPain && in(p.Length, "5b", "5c", "5d"):
		return model.LevelAlert, nil
	case in(p.RecentPain, "1a", "1b") && lowPain && in(p.Length, "5b", "5c") && in(p.Frequency, "8c", "8d"):
		return model.LevelAlert, nil
	case in(p.RecentPain, "1a", "1b") && lowPain && p.Length == "5d":
		return model.LevelAlert, nil
	case p.RestPain == "2a":
		return model.LevelAlert, nil
	case p.Level == "7":
		return model.LevelAlert, nil
	}

	heavyOrDull := in(p.Type, "Heaviness", "Dull/Aching")
	switch {
	case p.Worse == "Exertion" && heavyOrDull && in(p.Length, "5c", "5d"):
		return model.LevelAlert, nil
	case p.Worse == "Deep breathing/coughing" && p.Type == "Dull/Aching" && in(p.Level, "5", "6"):
		return model.LevelAlert, nil
	case p.Worse == "Exertion" && heavyOrDull && in(p.RecentPain, "1a", "1b"):
		return model.LevelAlert, nil
	case p.Worse == "Deep breathing/coughing" && in(p.Type, "Sharp/Stabbing", "Dull/Aching"):
		return model.LevelAlert, nil
	case p.Better == "Nothing/unrelieved" && in(p.Length, "5c", "5d") && in(p.RecentPain, "1a", "1b"):
		return model.LevelAlert, nil
	}

	if in(p.Frequency, "8c", "8d") {
		rec, err := c.recent(ctx, model.CategoryShortnessOfBreath, patientID, now)
		if err != nil {
			return 0, err
		}
		if rec != nil && rec.Payload.Level == "10b" {
			return model.LevelAlert, nil
		}
	}

	return model.LevelNormal, nil
}
