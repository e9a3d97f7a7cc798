package application

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ahrav/go-ballot/internal/ports"
)

// maxRegionDistance is the largest edit distance at which a typed name
// still selects a region.
const maxRegionDistance = 2

var turkishLower = cases.Lower(language.Turkish)

// FoldName lowers s with Turkish casing rules and strips diacritics, so
// "İSTANBUL", "Istanbul" and "istanbul" all fold to "istanbul".
func FoldName(s string) string {
	lowered := turkishLower.String(strings.TrimSpace(s))
	// Dotless ı has no decomposition, map it by hand.
	lowered = strings.ReplaceAll(lowered, "ı", "i")

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// ResolveRegion maps a menu selection to a region. selection may be the
// menu number, the region ID or name, or a name within a small edit
// distance of one. It returns ports.ErrUnknownRegion when nothing matches
// or when a misspelling is equally close to two regions.
func ResolveRegion(regions []RegionConfig, selection string) (RegionConfig, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return RegionConfig{}, fmt.Errorf("%w: empty selection", ports.ErrUnknownRegion)
	}

	if n, err := strconv.Atoi(selection); err == nil {
		for _, r := range regions {
			if r.Menu == n {
				return r, nil
			}
		}
		return RegionConfig{}, fmt.Errorf("%w: menu %d", ports.ErrUnknownRegion, n)
	}

	folded := FoldName(selection)
	for _, r := range regions {
		if folded == FoldName(r.ID) || folded == FoldName(r.Name) {
			return r, nil
		}
	}

	best, bestDist, tie := -1, maxRegionDistance+1, false
	for i, r := range regions {
		d := min(
			levenshtein.ComputeDistance(folded, FoldName(r.ID)),
			levenshtein.ComputeDistance(folded, FoldName(r.Name)),
		)
		switch {
		case d < bestDist:
			best, bestDist, tie = i, d, false
		case d == bestDist:
			tie = true
		}
	}
	if best < 0 || tie {
		return RegionConfig{}, fmt.Errorf("%w: %q", ports.ErrUnknownRegion, selection)
	}
	return regions[best], nil
}

// Menu renders the numbered region menu shown before reading a selection.
func Menu(regions []RegionConfig) string {
	var b strings.Builder
	for _, r := range regions {
		fmt.Fprintf(&b, "%d) %s\n", r.Menu, r.Name)
	}
	return b.String()
}
