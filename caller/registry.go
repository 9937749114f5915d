package caller

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

// CallerKind is the closed set of caller families.  Dispatch on a kind is
// a tagged switch, not a virtual call; the name table below exists only at
// the configuration boundary.
type CallerKind int

const (
	CallerIndividual CallerKind = iota
	CallerPopulation
)

// MeasureKind is the closed set of per-call annotation measures.  Measures
// are evaluated once per emitted record, so they dispatch through a switch
// as well.
type MeasureKind int

const (
	MeasureDepth MeasureKind = iota
	MeasureQuality
	MeasurePosterior
	MeasureZygosity
)

// Record is the per-site view measures are evaluated against.
type Record struct {
	Depth     int
	Qual      float64
	Posterior float64
	Zygosity  int
}

// Evaluate returns the measure's value for one record.
func (k MeasureKind) Evaluate(r Record) float64 {
	switch k {
	case MeasureDepth:
		return float64(r.Depth)
	case MeasureQuality:
		return r.Qual
	case MeasurePosterior:
		return r.Posterior
	case MeasureZygosity:
		return float64(r.Zygosity)
	default:
		panic(fmt.Sprintf("caller.MeasureKind.Evaluate: unknown measure kind %d", k))
	}
}

var (
	registryOnce sync.Once
	callerNames  map[string]CallerKind
	measureNames map[string]MeasureKind
)

func initRegistries() {
	registryOnce.Do(func() {
		callerNames = map[string]CallerKind{
			"individual": CallerIndividual,
			"population": CallerPopulation,
		}
		measureNames = map[string]MeasureKind{
			"depth":     MeasureDepth,
			"quality":   MeasureQuality,
			"posterior": MeasurePosterior,
			"zygosity":  MeasureZygosity,
		}
	})
}

// ParseCallerKind resolves a user-supplied caller name.  Unknown names list
// the valid set and suggest the nearest one.
func ParseCallerKind(name string) (CallerKind, error) {
	initRegistries()
	if k, ok := callerNames[name]; ok {
		return k, nil
	}
	return 0, unknownNameErr("caller", name, callerNameList())
}

// ParseMeasureKind resolves a user-supplied measure name.
func ParseMeasureKind(name string) (MeasureKind, error) {
	initRegistries()
	if k, ok := measureNames[name]; ok {
		return k, nil
	}
	return 0, unknownNameErr("measure", name, measureNameList())
}

func callerNameList() []string {
	names := make([]string, 0, len(callerNames))
	for n := range callerNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func measureNameList() []string {
	names := make([]string, 0, len(measureNames))
	for n := range measureNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func unknownNameErr(kind, name string, valid []string) error {
	best := ""
	bestDist := len(name) + 1
	for _, v := range valid {
		if d := matchr.Levenshtein(name, v); d < bestDist {
			bestDist = d
			best = v
		}
	}
	msg := fmt.Sprintf("unknown %s %q; valid %ss are %s", kind, name, kind, strings.Join(valid, ", "))
	if best != "" && bestDist <= len(best)/2+1 {
		msg += fmt.Sprintf(" (did you mean %q?)", best)
	}
	return fmt.Errorf("%s", msg)
}
