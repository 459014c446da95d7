package core

import (
	"context"
	"fmt"
)

// Service answers queries against the cache's current generation. Every
// query loads the cache first when it is empty.
type Service struct {
	cache *Cache
}

// NewService creates a Service over cache.
func NewService(cache *Cache) *Service {
	return &Service{cache: cache}
}

// Cache returns the underlying cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Load rebuilds the cache from the sources.
func (s *Service) Load(ctx context.Context) (CacheStatus, error) {
	if _, err := s.cache.Load(ctx); err != nil {
		return s.cache.Status(), err
	}
	return s.cache.Status(), nil
}

// Clear empties the cache.
func (s *Service) Clear(ctx context.Context) CacheStatus {
	s.cache.Clear(ctx)
	return s.cache.Status()
}

// Status returns the cache status without loading.
func (s *Service) Status() CacheStatus {
	return s.cache.Status()
}

// ProductionByYear returns the production of a year in source order.
func (s *Service) ProductionByYear(ctx context.Context, year int) ([]ProductRecord, error) {
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	facts := gen.Production.Year(year)
	out := make([]ProductRecord, len(facts))
	for i, f := range facts {
		out[i] = productRecord(f.Year, f.Quantity, f.Product)
	}
	return out, nil
}

// ProductionTotalByCategory sums the production of a year for one category.
// Category names match ignoring case and accents; no match is a total of 0.
func (s *Service) ProductionTotalByCategory(ctx context.Context, category string, year int) (float64, error) {
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return 0, err
	}
	key := NormalizeName(category)
	var total float64
	for _, f := range gen.Production.Year(year) {
		if NormalizeName(f.Product.Category.Name) == key {
			total += f.Quantity
		}
	}
	return total, nil
}

// CommercializationByYear returns the commercialization of a year in source
// order.
func (s *Service) CommercializationByYear(ctx context.Context, year int) ([]ProductRecord, error) {
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	facts := gen.Commercialization.Year(year)
	out := make([]ProductRecord, len(facts))
	for i, f := range facts {
		out[i] = productRecord(f.Year, f.Quantity, f.Product)
	}
	return out, nil
}

// ProcessingByYearAndGrapeType returns the processing of one grape type in a
// year.
func (s *Service) ProcessingByYearAndGrapeType(ctx context.Context, year int, g GrapeType) ([]ProcessingRecord, error) {
	if g.Slug() == "" {
		return nil, fmt.Errorf("%w: grape type %d", ErrUnknownDataset, g)
	}
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	facts := gen.Processing[g].Year(year)
	out := make([]ProcessingRecord, len(facts))
	for i, f := range facts {
		out[i] = ProcessingRecord{
			GrapeType: f.Cultivar.GrapeType.String(),
			Year:      f.Year,
			Quantity:  f.Quantity,
			Cultivar:  f.Cultivar.Name,
			Category:  f.Cultivar.Category.Name,
		}
	}
	return out, nil
}

// TradeByYearAndCategory returns the imports or exports of one trade
// category in a year.
func (s *Service) TradeByYearAndCategory(ctx context.Context, year int, c TradeCategory, d Direction) ([]TradeRecord, error) {
	if c.Slug() == "" {
		return nil, fmt.Errorf("%w: trade category %d", ErrUnknownDataset, c)
	}
	if d != Import && d != Export {
		return nil, fmt.Errorf("%w: direction %q", ErrUnknownDataset, d)
	}
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	facts := gen.Trade(d, c).Year(year)
	out := make([]TradeRecord, len(facts))
	for i, f := range facts {
		out[i] = TradeRecord{
			Category: f.Category.String(),
			Year:     f.Year,
			Country:  f.Country.Name,
			Quantity: f.Quantity,
			Value:    f.Value,
		}
	}
	return out, nil
}

// Years returns the years available in a dataset.
func (s *Service) Years(ctx context.Context, id DatasetID) ([]int, error) {
	def, ok := s.definition(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	gen, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return gen.Years(def), nil
}

func (s *Service) definition(id DatasetID) (DatasetDefinition, bool) {
	for _, def := range s.cache.defs {
		if def.ID == id {
			return def, true
		}
	}
	return DatasetDefinition{}, false
}

func productRecord(year int, quantity float64, p *Product) ProductRecord {
	return ProductRecord{
		Year:     year,
		Quantity: quantity,
		Product:  p.Name,
		Category: p.Category.Name,
	}
}
