package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// OutputPatterns is the pattern table the parser extracts structured results
// with. It is a first-class value so new metrics can be added and tested
// without touching the parse driver.
type OutputPatterns struct {
	// Score matches the driver's summary line; group 1 is the score.
	Score *regexp.Regexp

	// Outcome matches per-test result lines; groups are outcome, test name,
	// and message.
	Outcome *regexp.Regexp

	// Metrics maps a metric key to a pattern whose group 1 is the value.
	Metrics map[string]*regexp.Regexp

	// WarningMarker selects lines collected verbatim as warnings.
	WarningMarker *regexp.Regexp
}

// DefaultOutputPatterns matches the program text produced by Generator.
func DefaultOutputPatterns() *OutputPatterns {
	return &OutputPatterns{
		Score:   regexp.MustCompile(`Score:\s+([\d.]+)`),
		Outcome: regexp.MustCompile(`^(PASS|FAIL)\s+(\S+):\s*(.*)$`),
		Metrics: map[string]*regexp.Regexp{
			"import_time": regexp.MustCompile(`Import time:\s+([\d.]+)s`),
			"version":     regexp.MustCompile(`Package version:\s+(.+)`),
			"attributes":  regexp.MustCompile(`Public attributes:\s+(\d+)`),
		},
		WarningMarker: regexp.MustCompile(`(?i)warning`),
	}
}

// ParsedOutput is the structured view of a test program's stdout.
type ParsedOutput struct {
	Score       float64
	ScoreFound  bool
	TestResults map[string]string // test name -> outcome or metric value
	Warnings    []string
}

// ParseOutput extracts the score, per-test outcomes, named metrics, and
// warning lines from captured stdout. Missing patterns degrade to absent
// fields, never errors: a program with no parseable summary line scores 0.0.
func (p *OutputPatterns) ParseOutput(stdout string) *ParsedOutput {
	out := &ParsedOutput{
		TestResults: make(map[string]string),
	}

	if m := p.Score.FindStringSubmatch(stdout); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.Score = score
			out.ScoreFound = true
		}
	}

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := p.Outcome.FindStringSubmatch(line); m != nil {
			out.TestResults[m[2]] = strings.ToLower(m[1])
			continue
		}
		if p.WarningMarker.MatchString(line) {
			out.Warnings = append(out.Warnings, line)
		}
	}

	for key, pattern := range p.Metrics {
		if m := pattern.FindStringSubmatch(stdout); m != nil {
			out.TestResults[key] = strings.TrimSpace(m[1])
		}
	}

	return out
}

// ParseErrors splits stderr into non-empty trimmed lines.
func ParseErrors(stderr string) []string {
	var errs []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			errs = append(errs, line)
		}
	}
	return errs
}
