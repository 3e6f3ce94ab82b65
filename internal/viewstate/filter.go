// Package viewstate holds the per-session exercise lists, their filters and
// the sequencing that keeps late responses from overwriting newer ones.
package viewstate

import (
	"slices"
	"strings"
)

// FilterAll selects every item.
const FilterAll = "All"

// BodyRegions lists the region tags offered as filters, in display order.
var BodyRegions = []string{
	"Brazo", "Hombro", "Codo", "Muñeca", "Mano",
	"Pierna", "Rodilla", "Tobillo", "Pie",
	"Cervical", "Lumbar", "Tronco", "Cadera",
	"General",
}

// Regional is anything carrying a body-region tag.
type Regional interface {
	BodyRegion() string
}

// NormalizeRegion maps user input to a filter tag. Empty input and the
// Spanish "Todos" both mean FilterAll.
func NormalizeRegion(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, FilterAll) || strings.EqualFold(tag, "Todos") {
		return FilterAll
	}
	return tag
}

// Filter returns the items whose region equals region, in their original
// order. FilterAll returns every item. The input slice is never modified.
func Filter[T Regional](items []T, region string) []T {
	region = NormalizeRegion(region)
	if region == FilterAll {
		return slices.Clone(items)
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item.BodyRegion() == region {
			out = append(out, item)
		}
	}
	return out
}
