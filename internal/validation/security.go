package validation

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SecurityPattern is one suspicious-code pattern within a category. Raw holds
// the original pattern text used in finding messages.
type SecurityPattern struct {
	Raw     string
	Pattern *regexp.Regexp
}

// SecurityCategory groups an ordered list of patterns under a reported name.
type SecurityCategory struct {
	Name     string
	Patterns []SecurityPattern
}

// DefaultSecurityCategories returns the four built-in scan categories.
// The table is a first-class value: callers can extend or replace it without
// touching the scan driver.
func DefaultSecurityCategories() []SecurityCategory {
	return []SecurityCategory{
		category("dangerous_imports",
			`import\s+os\.system`,
			`import\s+subprocess\.`,
			`from\s+subprocess\s+import`,
			`os\.system\s*\(`,
			`subprocess\.(run|call|Popen)\s*\(`,
		),
		category("network_access",
			`import\s+urllib`,
			`import\s+requests`,
			`import\s+socket`,
			`import\s+http\.`,
			`from\s+urllib`,
		),
		category("file_system",
			`import\s+shutil`,
			`os\.remove`,
			`os\.unlink`,
			`shutil\.rmtree`,
		),
		category("eval_patterns",
			`eval\s*\(`,
			`exec\s*\(`,
			`compile\s*\(`,
			`__import__\s*\(`,
		),
	}
}

func category(name string, raw ...string) SecurityCategory {
	patterns := make([]SecurityPattern, len(raw))
	for i, r := range raw {
		patterns[i] = SecurityPattern{
			Raw:     r,
			Pattern: regexp.MustCompile(`(?i)` + r),
		}
	}
	return SecurityCategory{Name: name, Patterns: patterns}
}

// SecurityScan walks every Python source file under root and records one
// finding per matching (category, pattern, file) triple, formatted
// "<category>: <pattern> found in <file>". Pure text matching — no scanned
// code is ever executed. Unreadable files are logged and skipped.
func SecurityScan(root string, categories []SecurityCategory, logger *slog.Logger) []string {
	var findings []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".py") {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			if logger != nil {
				logger.Warn("could not scan file",
					slog.String("path", path),
					slog.String("error", readErr.Error()),
				)
			}
			return nil
		}

		content := string(data)
		base := filepath.Base(path)
		for _, cat := range categories {
			for _, p := range cat.Patterns {
				if p.Pattern.MatchString(content) {
					findings = append(findings, fmt.Sprintf("%s: %s found in %s", cat.Name, p.Raw, base))
				}
			}
		}
		return nil
	})
	if walkErr != nil && logger != nil {
		logger.Warn("security scan incomplete",
			slog.String("root", root),
			slog.String("error", walkErr.Error()),
		)
	}

	return findings
}
