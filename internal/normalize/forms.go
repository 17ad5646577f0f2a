package normalize

import (
	"strings"

	"github.com/araquach/acuity-datahub/internal/models"
)

// ExtractFormField returns the value of the first field whose lower-cased
// name contains a candidate. Candidates are tried in order, each against
// every form and field in upstream order, so the first candidate to match
// anything wins even if a later candidate matches an earlier field.
func ExtractFormField(forms []models.FormSubmission, candidates []string) (string, bool) {
	for _, c := range candidates {
		needle := strings.ToLower(strings.TrimSpace(c))
		if needle == "" {
			continue
		}
		for _, form := range forms {
			for _, field := range form.Values {
				name := strings.ToLower(strings.TrimSpace(field.Name))
				if strings.Contains(name, needle) {
					return field.Value.String(), true
				}
			}
		}
	}
	return "", false
}
