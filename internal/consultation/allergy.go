package consultation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/yoockh/medscribe/internal/models"
)

type AllergyConflict struct {
	Medication string `json:"medication"`
	Allergy    string `json:"allergy"`
}

type allergyClass struct {
	allergens []string
	drugs     []string
}

// Stems are matched by substring on accent-folded lowercase text, so "Pénicilline" hits
// "penicillin" and "Amoxicilline" hits "amoxicillin".
var allergyClasses = []allergyClass{
	{
		allergens: []string{"penicillin", "betalactam", "beta-lactam"},
		drugs:     []string{"penicillin", "amoxicillin", "ampicillin", "augmentin", "cloxacillin", "oxacillin", "piperacillin"},
	},
	{
		allergens: []string{"sulfonamide", "sulfamide", "sulfa"},
		drugs:     []string{"sulfamethoxazole", "cotrimoxazole", "bactrim", "sulfadiazine"},
	},
	{
		allergens: []string{"nsaid", "ains", "aspirin", "ibuprofen"},
		drugs:     []string{"aspirin", "ibuprofen", "ketoprofen", "diclofenac", "naproxen"},
	},
	{
		allergens: []string{"codein", "opioid", "opiace"},
		drugs:     []string{"codein", "tramadol", "morphin"},
	},
}

// AllergyConflicts lists the medications that clash with a known allergy, either directly by
// name or through a drug class.
func AllergyConflicts(meds []models.Medication, allergies []string) []AllergyConflict {
	out := []AllergyConflict{}
	for _, m := range meds {
		name := fold(m.Name)
		if name == "" {
			continue
		}
		for _, a := range allergies {
			allergy := fold(a)
			if allergy == "" {
				continue
			}
			if conflicts(name, allergy) {
				out = append(out, AllergyConflict{Medication: m.Name, Allergy: a})
			}
		}
	}
	return out
}

func conflicts(drug, allergy string) bool {
	if len(allergy) >= 4 && strings.Contains(drug, allergy) {
		return true
	}
	if len(drug) >= 4 && strings.Contains(allergy, drug) {
		return true
	}
	for _, c := range allergyClasses {
		if containsAny(allergy, c.allergens) && containsAny(drug, c.drugs) {
			return true
		}
	}
	return false
}

func containsAny(s string, stems []string) bool {
	for _, stem := range stems {
		if strings.Contains(s, stem) {
			return true
		}
	}
	return false
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
