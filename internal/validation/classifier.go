package validation

import "strings"

// Category is the coarse package family used to pick functional test fragments.
type Category string

const (
	CategoryWeb     Category = "web"
	CategoryData    Category = "data-science"
	CategoryML      Category = "ml"
	CategoryGeneral Category = "general"
)

// categoryPatterns maps each category to name substrings that select it.
// Ordered: the first category with a match wins.
var categoryPatterns = []struct {
	category Category
	patterns []string
}{
	{CategoryWeb, []string{"flask", "django", "fastapi", "tornado", "pyramid", "bottle"}},
	{CategoryData, []string{"pandas", "numpy", "scipy", "sklearn", "matplotlib", "seaborn"}},
	{CategoryML, []string{"tensorflow", "torch", "keras", "xgboost", "lightgbm"}},
}

// Classify buckets a package into a coarse category by substring match
// against its name.
func Classify(packageName string) Category {
	name := strings.ToLower(packageName)
	for _, entry := range categoryPatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(name, pattern) {
				return entry.category
			}
		}
	}
	return CategoryGeneral
}
