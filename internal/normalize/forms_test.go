package normalize

import (
	"testing"

	"github.com/araquach/acuity-datahub/internal/models"
)

func sampleForms() []models.FormSubmission {
	return []models.FormSubmission{
		{Name: "Intake", Values: []models.FormValue{
			{Name: "Color Tag", Value: "teal"},
			{Name: "Processing Fee %", Value: "0.03"},
		}},
		{Name: "Billing", Values: []models.FormValue{
			{Name: "Fee:", Value: "0.05"},
		}},
	}
}

func TestExtractFormFieldPriority(t *testing.T) {
	forms := sampleForms()

	got, ok := ExtractFormField(forms, []string{"processing fee", "fee:"})
	if !ok || got != "0.03" {
		t.Fatalf("got %q, %v; want 0.03", got, ok)
	}

	// the first candidate wins even though it matches a later form
	got, ok = ExtractFormField(forms, []string{"FEE:", "processing fee"})
	if !ok || got != "0.05" {
		t.Fatalf("got %q, %v; want 0.05", got, ok)
	}
}

func TestExtractFormFieldAbsent(t *testing.T) {
	if _, ok := ExtractFormField(sampleForms(), []string{"gratuity"}); ok {
		t.Fatalf("unexpected match")
	}
	if _, ok := ExtractFormField(nil, []string{"fee"}); ok {
		t.Fatalf("unexpected match on nil forms")
	}
	if _, ok := ExtractFormField(sampleForms(), []string{"  ", ""}); ok {
		t.Fatalf("blank candidates must not match")
	}
}
