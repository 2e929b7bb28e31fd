package isa

import (
	"fmt"
	"sort"
	"strings"
)

// Features is a bitmask of optional instruction set extensions the
// compiled code was allowed to use.
type Features uint32

const (
	FeatureHwDiv Features = 1 << iota // hardware integer divide (arm)
	FeatureLpae                       // large physical address extension (arm)
)

var featureNames = map[string]Features{
	"div":  FeatureHwDiv,
	"lpae": FeatureLpae,
}

// ParseFeatures builds a feature mask from names like "div" or "lpae".
// "default" and "none" contribute nothing.
func ParseFeatures(list []string) (Features, error) {
	var f Features
	for _, raw := range list {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "", "default", "none":
			continue
		}
		bit, ok := featureNames[name]
		if !ok {
			return 0, fmt.Errorf("isa: unknown feature %q", raw)
		}
		f |= bit
	}
	return f, nil
}

// Has reports whether every bit of other is set.
func (f Features) Has(other Features) bool {
	return f&other == other
}

func (f Features) String() string {
	var parts []string
	for name, bit := range featureNames {
		if f.Has(bit) {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
