package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// fragment is one typed building block of a generated test program. Rendering
// is a single final step, so fragment selection by level and category can be
// tested independently of text formatting.
type fragment struct {
	name     string // test name registered with the program driver
	source   string // python function definition, empty for host-side fragments
	hostSide bool   // executed by the result interpreter, not inside the program
}

// Generator assembles self-contained Python test programs. Generation is a
// pure function of its inputs: no filesystem or network access, same inputs
// always produce the same program text.
type Generator struct {
	// PassThreshold is the score at or above which the generated driver
	// exits 0. Default 0.8.
	PassThreshold float64

	// ImportTimeBudget is the performance fragment's import-time budget in
	// seconds. Default 5.0.
	ImportTimeBudget float64
}

// NewGenerator creates a Generator with the given thresholds; zero values
// select the defaults.
func NewGenerator(passThreshold, importTimeBudget float64) *Generator {
	if passThreshold <= 0 {
		passThreshold = 0.8
	}
	if importTimeBudget <= 0 {
		importTimeBudget = 5.0
	}
	return &Generator{
		PassThreshold:    passThreshold,
		ImportTimeBudget: importTimeBudget,
	}
}

// customTestPattern finds top-level test functions in caller-supplied
// fragments so they can be registered with the driver.
var customTestPattern = regexp.MustCompile(`(?m)^def (test_\w+)\s*\(`)

// Generate produces the complete test program for a package at the requested
// level. Caller-supplied custom fragments are appended verbatim after the
// generated test functions; their top-level test_* functions are registered
// with the driver and count toward the score like any generated test.
func (g *Generator) Generate(packageName string, level Level, custom ...string) string {
	category := Classify(packageName)
	fragments := fragmentsFor(level, category)

	var b strings.Builder
	b.WriteString("#!/usr/bin/env python3\n")
	fmt.Fprintf(&b, "\"\"\"Validation program for %s. Generated by snakepit.\"\"\"\n\n", packageName)
	b.WriteString("import sys\nimport time\nimport traceback\n\n")
	fmt.Fprintf(&b, "PACKAGE_NAME = %q\n", packageName)
	fmt.Fprintf(&b, "VALIDATION_LEVEL = %q\n", string(level))
	fmt.Fprintf(&b, "PASS_THRESHOLD = %.2f\n", g.PassThreshold)
	fmt.Fprintf(&b, "IMPORT_TIME_BUDGET = %.2f\n", g.ImportTimeBudget)

	for _, f := range fragments {
		if f.hostSide {
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.source)
	}

	for _, c := range custom {
		b.WriteString("\n")
		b.WriteString(c)
		if !strings.HasSuffix(c, "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString("\nTESTS = [\n")
	for _, f := range fragments {
		if f.hostSide {
			continue
		}
		fmt.Fprintf(&b, "    (%q, test_%s),\n", f.name, f.name)
	}
	for _, c := range custom {
		for _, m := range customTestPattern.FindAllStringSubmatch(c, -1) {
			fn := m[1]
			fmt.Fprintf(&b, "    (%q, %s),\n", strings.TrimPrefix(fn, "test_"), fn)
		}
	}
	b.WriteString("]\n")

	b.WriteString(driverSource)
	return b.String()
}

// fragmentsFor selects the typed fragments enabled for a level and category.
// The basic-import fragment is always present; host-side fragments carry no
// program text but mark work the result interpreter performs.
func fragmentsFor(level Level, category Category) []fragment {
	fragments := []fragment{basicImportFragment}

	if level.includesMetadata() {
		fragments = append(fragments, metadataFragment)
	}
	if level.includesCategory() {
		switch category {
		case CategoryWeb:
			fragments = append(fragments, webFragment)
		case CategoryData:
			fragments = append(fragments, dataFragment)
		case CategoryML:
			fragments = append(fragments, mlFragment)
		}
	}
	if level.includesPerformance() {
		fragments = append(fragments, performanceFragment)
	}
	if level.IncludesSecurityScan() {
		fragments = append(fragments, securityScanFragment)
	}
	return fragments
}

var basicImportFragment = fragment{
	name: "basic_import",
	source: `def test_basic_import():
    __import__(PACKAGE_NAME)
    return True, "import successful"
`,
}

var metadataFragment = fragment{
	name: "metadata",
	source: `def test_metadata():
    mod = __import__(PACKAGE_NAME)
    version = None
    for attr in ("__version__", "VERSION", "version"):
        if hasattr(mod, attr):
            version = getattr(mod, attr)
            break
    if version is not None:
        print("Package version: %s" % (version,))
    else:
        print("warning: no version information found")
    attrs = [a for a in dir(mod) if not a.startswith("_")]
    print("Public attributes: %d" % len(attrs))
    return True, "metadata collected"
`,
}

var webFragment = fragment{
	name: "web_framework",
	source: `def test_web_framework():
    mod = __import__(PACKAGE_NAME)
    if hasattr(mod, "Flask"):
        mod.Flask(__name__)
        return True, "Flask app constructed"
    if hasattr(mod, "FastAPI"):
        mod.FastAPI()
        return True, "FastAPI app constructed"
    for attr in ("app", "route", "run"):
        if hasattr(mod, attr):
            return True, "web entry point %s present" % attr
    return False, "no web framework entry point found"
`,
}

var dataFragment = fragment{
	name: "data_package",
	source: `def test_data_package():
    mod = __import__(PACKAGE_NAME)
    if hasattr(mod, "array"):
        arr = mod.array([1, 2, 3])
        return len(arr) == 3, "array constructed"
    if hasattr(mod, "DataFrame"):
        df = mod.DataFrame({"a": [1, 2], "b": [3, 4]})
        return len(df) == 2, "DataFrame constructed"
    return False, "no array or DataFrame entry point found"
`,
}

var mlFragment = fragment{
	name: "ml_package",
	source: `def test_ml_package():
    mod = __import__(PACKAGE_NAME)
    for attr in ("Tensor", "tensor", "Model", "DMatrix", "Dataset"):
        if hasattr(mod, attr):
            return True, "ml entry point %s present" % attr
    return True, "imported without ml entry point checks"
`,
}

var performanceFragment = fragment{
	name: "import_performance",
	source: `def test_import_performance():
    start = time.time()
    __import__(PACKAGE_NAME)
    elapsed = time.time() - start
    print("Import time: %.3fs" % elapsed)
    return elapsed < IMPORT_TIME_BUDGET, "import took %.3fs" % elapsed
`,
}

// securityScanFragment marks the static scan the result interpreter runs
// against the sandbox's installed source tree.
var securityScanFragment = fragment{
	name:     "security_scan",
	hostSide: true,
}

// driverSource runs every registered test, accumulates a pass count, prints
// the machine-parsable summary line, and exits 0 iff the score clears the
// threshold.
const driverSource = `
def main():
    print("Validating %s at %s level" % (PACKAGE_NAME, VALIDATION_LEVEL))
    passed = 0
    total = 0
    for name, fn in TESTS:
        total += 1
        try:
            ok, message = fn()
        except Exception as exc:
            ok, message = False, "%s" % (exc,)
            traceback.print_exc()
        if ok:
            passed += 1
            print("PASS %s: %s" % (name, message))
        else:
            print("FAIL %s: %s" % (name, message))
    score = float(passed) / total if total else 0.0
    print("Score: %.2f (%d/%d tests passed)" % (score, passed, total))
    sys.exit(0 if score >= PASS_THRESHOLD else 1)

if __name__ == "__main__":
    main()
`
