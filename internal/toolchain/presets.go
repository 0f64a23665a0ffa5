package toolchain

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// presets are canned predefined-macro sets for common compilers, used when
// no compiler is available to probe.
var presets = map[string]Signals{
	"msvc": {
		"_WIN32":   "1",
		"_MSC_VER": "1939",
	},
	"clang-cl": {
		"_WIN32":    "1",
		"_MSC_VER":  "1939",
		"__clang__": "1",
	},
	"mingw": {
		"_WIN32":              "1",
		"__MINGW32__":         "1",
		"__GNUC__":            "13",
		"__GNUC_MINOR__":      "2",
		"__GNUC_PATCHLEVEL__": "0",
	},
	"gcc": {
		"__GNUC__":            "13",
		"__GNUC_MINOR__":      "2",
		"__GNUC_PATCHLEVEL__": "0",
	},
	"clang": {
		"__GNUC__":            "4",
		"__GNUC_MINOR__":      "2",
		"__GNUC_PATCHLEVEL__": "1",
		"__clang__":           "1",
	},
	"gcc3": {
		"__GNUC__":            "3",
		"__GNUC_MINOR__":      "4",
		"__GNUC_PATCHLEVEL__": "6",
	},
}

// Preset returns a copy of the named preset's signals.
func Preset(name string) (Signals, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.WithHintf(errors.Newf("unknown toolchain preset: %q", name), "use %s", strings.Join(PresetNames(), ", "))
	}
	s := make(Signals, len(p))
	for k, v := range p {
		s[k] = v
	}
	return s, nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
