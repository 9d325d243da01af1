package validation

import (
	"testing"
)

const sampleOutput = `Validating requests at standard level
PASS basic_import: import successful
Package version: 2.31.0
Public attributes: 42
warning: no changelog entry found
PASS metadata: metadata collected
FAIL web_framework: no web framework entry point found
Import time: 0.132s
Score: 0.67 (2/3 tests passed)
`

func TestParseOutput(t *testing.T) {
	p := DefaultOutputPatterns()
	out := p.ParseOutput(sampleOutput)

	if !out.ScoreFound {
		t.Fatal("score not found")
	}
	if out.Score != 0.67 {
		t.Errorf("score = %v, want 0.67", out.Score)
	}

	wantResults := map[string]string{
		"basic_import":  "pass",
		"metadata":      "pass",
		"web_framework": "fail",
		"version":       "2.31.0",
		"attributes":    "42",
		"import_time":   "0.132",
	}
	for key, want := range wantResults {
		if got := out.TestResults[key]; got != want {
			t.Errorf("TestResults[%q] = %q, want %q", key, got, want)
		}
	}

	if len(out.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", out.Warnings)
	}
	if out.Warnings[0] != "warning: no changelog entry found" {
		t.Errorf("warning = %q", out.Warnings[0])
	}
}

func TestParseOutputMissingScore(t *testing.T) {
	p := DefaultOutputPatterns()
	out := p.ParseOutput("Segmentation fault\n")

	if out.ScoreFound {
		t.Error("ScoreFound = true for garbage output")
	}
	if out.Score != 0.0 {
		t.Errorf("score = %v, want 0.0", out.Score)
	}
}

func TestParseOutputEmpty(t *testing.T) {
	p := DefaultOutputPatterns()
	out := p.ParseOutput("")
	if out.Score != 0 || out.ScoreFound || len(out.TestResults) != 0 || len(out.Warnings) != 0 {
		t.Errorf("empty output parsed to non-empty result: %+v", out)
	}
}

func TestParseErrors(t *testing.T) {
	errs := ParseErrors("Traceback (most recent call last):\n\n  boom\n")
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2 lines", errs)
	}
	if errs[0] != "Traceback (most recent call last):" || errs[1] != "boom" {
		t.Errorf("errors = %v", errs)
	}
}

func TestParseErrorsEmpty(t *testing.T) {
	if errs := ParseErrors(""); len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
	if errs := ParseErrors("\n  \n"); len(errs) != 0 {
		t.Errorf("errors = %v, want none for whitespace-only stderr", errs)
	}
}
