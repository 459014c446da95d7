package core

import (
	"sort"
	"time"
)

// Collection is the ordered fact list of one dataset with a year index.
// It is immutable once built.
type Collection[T any] struct {
	facts  []T
	byYear map[int][]int
}

func newCollection[T any](facts []T, yearOf func(T) int) *Collection[T] {
	c := &Collection[T]{
		facts:  facts,
		byYear: make(map[int][]int),
	}
	for i, f := range facts {
		y := yearOf(f)
		c.byYear[y] = append(c.byYear[y], i)
	}
	return c
}

// Len returns the number of facts.
func (c *Collection[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.facts)
}

// Year returns the facts of one year in source order. The result is never nil.
func (c *Collection[T]) Year(year int) []T {
	if c == nil {
		return []T{}
	}
	idx := c.byYear[year]
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = c.facts[j]
	}
	return out
}

// All returns every fact in source order.
func (c *Collection[T]) All() []T {
	if c == nil {
		return []T{}
	}
	out := make([]T, len(c.facts))
	copy(out, c.facts)
	return out
}

// Years returns the years present, ascending.
func (c *Collection[T]) Years() []int {
	if c == nil {
		return []int{}
	}
	years := make([]int, 0, len(c.byYear))
	for y := range c.byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Generation is one complete build of every dataset. A published generation
// is never modified; a reload builds a new one.
type Generation struct {
	ID       string
	LoadedAt time.Time

	Production        *Collection[ProductionFact]
	Commercialization *Collection[CommercializationFact]
	Processing        map[GrapeType]*Collection[ProcessingFact]
	Imports           map[TradeCategory]*Collection[TradeFact]
	Exports           map[TradeCategory]*Collection[TradeFact]

	// Entities in creation order.
	Categories []*Category
	Products   []*Product
	Cultivars  []*Cultivar
	Countries  []*Country
}

// Trade returns the collection of one direction and category, or nil.
func (g *Generation) Trade(d Direction, c TradeCategory) *Collection[TradeFact] {
	switch d {
	case Import:
		return g.Imports[c]
	case Export:
		return g.Exports[c]
	default:
		return nil
	}
}

// FactCount returns the number of facts loaded for a dataset.
func (g *Generation) FactCount(def DatasetDefinition) int {
	switch def.Kind {
	case KindProduction:
		return g.Production.Len()
	case KindCommercialization:
		return g.Commercialization.Len()
	case KindProcessing:
		return g.Processing[def.GrapeType].Len()
	case KindImport:
		return g.Imports[def.TradeCategory].Len()
	case KindExport:
		return g.Exports[def.TradeCategory].Len()
	default:
		return 0
	}
}

// Years returns the years present in a dataset.
func (g *Generation) Years(def DatasetDefinition) []int {
	switch def.Kind {
	case KindProduction:
		return g.Production.Years()
	case KindCommercialization:
		return g.Commercialization.Years()
	case KindProcessing:
		return g.Processing[def.GrapeType].Years()
	case KindImport:
		return g.Imports[def.TradeCategory].Years()
	case KindExport:
		return g.Exports[def.TradeCategory].Years()
	default:
		return []int{}
	}
}
