package core

// builder.go resolves parsed rows into entities and facts.
//
// A Builder holds the entity tables of one generation under construction.
// Every dataset of a load is built through the same Builder so that a
// category or product cited by several datasets is one shared instance.
// Each build stages its new entities and commits them only when the whole
// dataset succeeded.

import (
	"fmt"
	"time"
)

type productKey struct {
	category string
	name     string
}

type cultivarKey struct {
	grapeType GrapeType
	category  string
	name      string
}

// entityTables maps normalized keys to entities, with creation order kept
// for stable listings.
type entityTables struct {
	categories map[string]*Category
	products   map[productKey]*Product
	cultivars  map[cultivarKey]*Cultivar
	countries  map[string]*Country

	categoryOrder []*Category
	productOrder  []*Product
	cultivarOrder []*Cultivar
	countryOrder  []*Country
}

func newEntityTables() entityTables {
	return entityTables{
		categories: make(map[string]*Category),
		products:   make(map[productKey]*Product),
		cultivars:  make(map[cultivarKey]*Cultivar),
		countries:  make(map[string]*Country),
	}
}

// Builder builds the datasets of one generation.
type Builder struct {
	tables entityTables
	gen    *Generation
}

// NewBuilder returns a Builder with empty entity tables.
func NewBuilder() *Builder {
	return &Builder{
		tables: newEntityTables(),
		gen: &Generation{
			Processing: make(map[GrapeType]*Collection[ProcessingFact]),
			Imports:    make(map[TradeCategory]*Collection[TradeFact]),
			Exports:    make(map[TradeCategory]*Collection[TradeFact]),
		},
	}
}

// Build builds one parsed dataset into the generation and returns the
// number of facts it produced.
func (b *Builder) Build(p *ParsedDataset) (int, error) {
	def := p.Dataset
	switch def.Kind {
	case KindProduction:
		c, err := b.BuildProduction(p)
		if err != nil {
			return 0, err
		}
		b.gen.Production = c
		return c.Len(), nil
	case KindCommercialization:
		c, err := b.BuildCommercialization(p)
		if err != nil {
			return 0, err
		}
		b.gen.Commercialization = c
		return c.Len(), nil
	case KindProcessing:
		c, err := b.BuildProcessing(p, def.GrapeType)
		if err != nil {
			return 0, err
		}
		b.gen.Processing[def.GrapeType] = c
		return c.Len(), nil
	case KindImport, KindExport:
		c, err := b.BuildTrade(p, def.TradeCategory)
		if err != nil {
			return 0, err
		}
		if def.Kind == KindImport {
			b.gen.Imports[def.TradeCategory] = c
		} else {
			b.gen.Exports[def.TradeCategory] = c
		}
		return c.Len(), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownDataset, def.ID)
	}
}

// Generation finalizes the generation built so far. The Builder must not be
// used afterwards.
func (b *Builder) Generation(id string, loadedAt time.Time) *Generation {
	g := b.gen
	g.ID = id
	g.LoadedAt = loadedAt
	g.Categories = b.tables.categoryOrder
	g.Products = b.tables.productOrder
	g.Cultivars = b.tables.cultivarOrder
	g.Countries = b.tables.countryOrder
	b.gen = nil
	return g
}

// BuildProduction builds the production facts of a sectioned dataset.
func (b *Builder) BuildProduction(p *ParsedDataset) (*Collection[ProductionFact], error) {
	tx := b.begin(p.Dataset.ID)
	var facts []ProductionFact
	err := walkSections(p, func(section, item string, line int, values []YearValue) error {
		product, err := tx.product(section, item, line)
		if err != nil {
			return err
		}
		for _, v := range values {
			facts = append(facts, ProductionFact{Year: v.Year, Quantity: v.Quantity, Product: product})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tx.commit()
	return newCollection(facts, func(f ProductionFact) int { return f.Year }), nil
}

// BuildCommercialization builds the commercialization facts of a sectioned
// dataset. Products are shared with production.
func (b *Builder) BuildCommercialization(p *ParsedDataset) (*Collection[CommercializationFact], error) {
	tx := b.begin(p.Dataset.ID)
	var facts []CommercializationFact
	err := walkSections(p, func(section, item string, line int, values []YearValue) error {
		product, err := tx.product(section, item, line)
		if err != nil {
			return err
		}
		for _, v := range values {
			facts = append(facts, CommercializationFact{Year: v.Year, Quantity: v.Quantity, Product: product})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tx.commit()
	return newCollection(facts, func(f CommercializationFact) int { return f.Year }), nil
}

// BuildProcessing builds the processing facts of one grape type.
func (b *Builder) BuildProcessing(p *ParsedDataset, g GrapeType) (*Collection[ProcessingFact], error) {
	tx := b.begin(p.Dataset.ID)
	var facts []ProcessingFact
	err := walkSections(p, func(section, item string, line int, values []YearValue) error {
		cultivar, err := tx.cultivar(g, section, item, line)
		if err != nil {
			return err
		}
		for _, v := range values {
			facts = append(facts, ProcessingFact{Year: v.Year, Quantity: v.Quantity, Cultivar: cultivar})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	tx.commit()
	return newCollection(facts, func(f ProcessingFact) int { return f.Year }), nil
}

// BuildTrade builds the import or export facts of one trade category.
func (b *Builder) BuildTrade(p *ParsedDataset, c TradeCategory) (*Collection[TradeFact], error) {
	tx := b.begin(p.Dataset.ID)
	var facts []TradeFact
	for _, row := range p.Rows {
		switch r := row.(type) {
		case DataRow:
			country, err := tx.country(r.Name, r.Line)
			if err != nil {
				return nil, err
			}
			for _, v := range r.Values {
				facts = append(facts, TradeFact{
					Year:     v.Year,
					Quantity: v.Quantity,
					Value:    v.Value,
					Country:  country,
					Category: c,
				})
			}
		case HeaderRow:
			return nil, &IntegrityConflictError{
				Dataset: p.Dataset.ID,
				Line:    r.Line,
				Entity:  "country",
				Name:    r.Name,
				Cause:   "section header in a trade dataset",
			}
		}
	}
	tx.commit()
	return newCollection(facts, func(f TradeFact) int { return f.Year }), nil
}

// walkSections tracks the current section header and calls emit for every
// data row. A header with no data rows before the next header is a leaf
// section and is emitted as an item named after itself.
func walkSections(p *ParsedDataset, emit func(section, item string, line int, values []YearValue) error) error {
	var current *HeaderRow
	hasData := false

	flushLeaf := func() error {
		if current == nil || hasData {
			return nil
		}
		return emit(current.Name, current.Name, current.Line, current.Values)
	}

	for _, row := range p.Rows {
		switch r := row.(type) {
		case HeaderRow:
			if err := flushLeaf(); err != nil {
				return err
			}
			h := r
			current = &h
			hasData = false
		case DataRow:
			if current == nil {
				return &IntegrityConflictError{
					Dataset: p.Dataset.ID,
					Line:    r.Line,
					Entity:  "product",
					Name:    r.Name,
					Cause:   "data row before any section header",
				}
			}
			if err := emit(current.Name, r.Name, r.Line, r.Values); err != nil {
				return err
			}
			hasData = true
		}
	}
	return flushLeaf()
}

// buildTx stages the entities created by one dataset build.
type buildTx struct {
	b       *Builder
	dataset DatasetID
	staged  entityTables

	// Lines of the items already seen in this dataset.
	seenProducts  map[productKey]int
	seenCultivars map[cultivarKey]int
	seenCountries map[string]int
}

func (b *Builder) begin(id DatasetID) *buildTx {
	return &buildTx{
		b:             b,
		dataset:       id,
		staged:        newEntityTables(),
		seenProducts:  make(map[productKey]int),
		seenCultivars: make(map[cultivarKey]int),
		seenCountries: make(map[string]int),
	}
}

func (tx *buildTx) category(name string) *Category {
	key := NormalizeName(name)
	if c, ok := tx.b.tables.categories[key]; ok {
		return c
	}
	if c, ok := tx.staged.categories[key]; ok {
		return c
	}
	c := &Category{Name: name}
	tx.staged.categories[key] = c
	tx.staged.categoryOrder = append(tx.staged.categoryOrder, c)
	return c
}

func (tx *buildTx) product(section, name string, line int) (*Product, error) {
	key := productKey{category: NormalizeName(section), name: NormalizeName(name)}
	if first, dup := tx.seenProducts[key]; dup {
		return nil, &IntegrityConflictError{
			Dataset:  tx.dataset,
			Line:     line,
			Entity:   "product",
			Name:     name,
			Existing: section,
			Conflict: section,
			Cause:    fmt.Sprintf("already listed on line %d", first),
		}
	}
	tx.seenProducts[key] = line

	if p, ok := tx.b.tables.products[key]; ok {
		return p, nil
	}
	if p, ok := tx.staged.products[key]; ok {
		return p, nil
	}
	p := &Product{Name: name, Category: tx.category(section)}
	tx.staged.products[key] = p
	tx.staged.productOrder = append(tx.staged.productOrder, p)
	return p, nil
}

func (tx *buildTx) cultivar(g GrapeType, section, name string, line int) (*Cultivar, error) {
	key := cultivarKey{grapeType: g, category: NormalizeName(section), name: NormalizeName(name)}
	if first, dup := tx.seenCultivars[key]; dup {
		return nil, &IntegrityConflictError{
			Dataset:  tx.dataset,
			Line:     line,
			Entity:   "cultivar",
			Name:     name,
			Existing: section,
			Conflict: section,
			Cause:    fmt.Sprintf("already listed on line %d", first),
		}
	}
	tx.seenCultivars[key] = line

	if c, ok := tx.b.tables.cultivars[key]; ok {
		return c, nil
	}
	if c, ok := tx.staged.cultivars[key]; ok {
		return c, nil
	}
	c := &Cultivar{Name: name, Category: tx.category(section), GrapeType: g}
	tx.staged.cultivars[key] = c
	tx.staged.cultivarOrder = append(tx.staged.cultivarOrder, c)
	return c, nil
}

func (tx *buildTx) country(name string, line int) (*Country, error) {
	key := NormalizeName(name)
	if first, dup := tx.seenCountries[key]; dup {
		return nil, &IntegrityConflictError{
			Dataset: tx.dataset,
			Line:    line,
			Entity:  "country",
			Name:    name,
			Cause:   fmt.Sprintf("already listed on line %d", first),
		}
	}
	tx.seenCountries[key] = line

	if c, ok := tx.b.tables.countries[key]; ok {
		return c, nil
	}
	if c, ok := tx.staged.countries[key]; ok {
		return c, nil
	}
	c := &Country{Name: name}
	tx.staged.countries[key] = c
	tx.staged.countryOrder = append(tx.staged.countryOrder, c)
	return c, nil
}

// commit publishes the staged entities to the builder's tables.
func (tx *buildTx) commit() {
	t := &tx.b.tables
	for k, v := range tx.staged.categories {
		t.categories[k] = v
	}
	for k, v := range tx.staged.products {
		t.products[k] = v
	}
	for k, v := range tx.staged.cultivars {
		t.cultivars[k] = v
	}
	for k, v := range tx.staged.countries {
		t.countries[k] = v
	}
	t.categoryOrder = append(t.categoryOrder, tx.staged.categoryOrder...)
	t.productOrder = append(t.productOrder, tx.staged.productOrder...)
	t.cultivarOrder = append(t.cultivarOrder, tx.staged.cultivarOrder...)
	t.countryOrder = append(t.countryOrder, tx.staged.countryOrder...)
}
