package model

// Medical data categories a symptom submission may carry. The classifier
// has alert rules for a subset; the rest always classify normal.
const (
	CategoryAchesPain         = "aches_pain"
	CategoryAppetite          = "appetite"
	CategoryChestPain         = "chest_pain"
	CategoryFalls             = "falls"
	CategoryFatigue           = "fatigue"
	CategoryFever             = "fever"
	CategoryLegSwelling       = "leg_swelling"
	CategoryLightheadedness   = "lightheadedness"
	CategoryNausea            = "nausea"
	CategoryShortnessOfBreath = "shortness_of_breath"
	CategoryUlcers            = "ulcers"
	CategoryVitals            = "vitals"
	CategoryDialysis          = "dialysis"
	CategoryUrinary           = "urinary"
	CategoryWeightChange      = "weight_change"
	CategoryMood              = "mood"
)

// MedicalCategories is the canonical ordered category list the dashboard
// severity snapshot aligns to.
var MedicalCategories = []string{
	CategoryAchesPain,
	CategoryAppetite,
	CategoryChestPain,
	CategoryFalls,
	CategoryFatigue,
	CategoryFever,
	CategoryLegSwelling,
	CategoryLightheadedness,
	CategoryNausea,
	CategoryShortnessOfBreath,
	CategoryUlcers,
	CategoryVitals,
	CategoryDialysis,
	CategoryUrinary,
	CategoryWeightChange,
	CategoryMood,
}

var categorySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(MedicalCategories))
	for _, c := range MedicalCategories {
		m[c] = struct{}{}
	}
	return m
}()

// ValidCategory reports whether s is a known medical data category.
func ValidCategory(s string) bool {
	_, ok := categorySet[s]
	return ok
}

// CategoryLabel renders the human-readable form used in notification
// details, e.g. "shortness_of_breath" -> "Shortness Of Breath".
func CategoryLabel(category string) string {
	out := make([]byte, 0, len(category))
	upper := true
	for i := 0; i < len(category); i++ {
		c := category[i]
		if c == '_' {
			out = append(out, ' ')
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
