package naming

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// NaturalLess orders strings treating runs of digits as numbers, so
// "img2" < "img10". Letters compare case-insensitively; ties fall back to
// a plain byte comparison so the order is total.
func NaturalLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if natural.Less(la, lb) {
		return true
	}
	if natural.Less(lb, la) {
		return false
	}
	return a < b
}

// SortNatural sorts paths in place by base name in natural order.
func SortNatural(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]), filepath.Base(paths[j])
		if bi == bj {
			return NaturalLess(paths[i], paths[j])
		}
		return NaturalLess(bi, bj)
	})
}
