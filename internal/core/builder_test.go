package core

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, id DatasetID, body string) *ParsedDataset {
	t.Helper()
	p, err := parseString(testDefinition(id), body)
	if err != nil {
		t.Fatalf("Parse %s: %v", id, err)
	}
	return p
}

func TestBuilder_SectionTracking(t *testing.T) {
	b := NewBuilder()
	c, err := b.BuildProduction(mustParse(t, ProductionDataset, productionCSV))
	if err != nil {
		t.Fatalf("BuildProduction: %v", err)
	}

	facts := c.Year(2021)
	want := []struct{ product, category string }{
		{"Tinto", "VINHO DE MESA"},
		{"Branco", "VINHO DE MESA"},
		{"Suco de uva adoçado", "SUCO"},
	}
	if len(facts) != len(want) {
		t.Fatalf("len(facts) = %d, want %d", len(facts), len(want))
	}
	for i, w := range want {
		if facts[i].Product.Name != w.product || facts[i].Product.Category.Name != w.category {
			t.Errorf("fact %d = %s/%s, want %s/%s", i,
				facts[i].Product.Name, facts[i].Product.Category.Name, w.product, w.category)
		}
	}
	if c.Len() != 6 {
		t.Errorf("Len() = %d, want 6 (3 products x 2 years)", c.Len())
	}
}

func TestBuilder_LeafSection(t *testing.T) {
	b := NewBuilder()
	c, err := b.BuildProcessing(mustParse(t, ProcessingDatasetID(SemClassificacao), processingSemClassCSV), SemClassificacao)
	if err != nil {
		t.Fatalf("BuildProcessing: %v", err)
	}
	facts := c.Year(2020)
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1", len(facts))
	}
	f := facts[0]
	if f.Cultivar.Name != "Sem classificação" || f.Cultivar.Category.Name != "Sem classificação" {
		t.Errorf("cultivar = %s/%s", f.Cultivar.Name, f.Cultivar.Category.Name)
	}
	if f.Quantity != 7 {
		t.Errorf("Quantity = %v, want 7", f.Quantity)
	}
	if f.Cultivar.GrapeType != SemClassificacao {
		t.Errorf("GrapeType = %v, want SemClassificacao", f.Cultivar.GrapeType)
	}
	if got := c.Year(2021)[0].Quantity; got != 0 {
		t.Errorf("2021 nd quantity = %v, want 0", got)
	}
}

func TestBuilder_SharedEntities(t *testing.T) {
	b := NewBuilder()
	prod, err := b.BuildProduction(mustParse(t, ProductionDataset, productionCSV))
	if err != nil {
		t.Fatalf("BuildProduction: %v", err)
	}
	comm, err := b.BuildCommercialization(mustParse(t, CommercializationDataset, commercializationCSV))
	if err != nil {
		t.Fatalf("BuildCommercialization: %v", err)
	}

	p := prod.Year(2021)[0].Product
	c := comm.Year(2021)[0].Product
	if p != c {
		t.Errorf("Tinto resolved to two instances: %p and %p", p, c)
	}
	if p.Category != comm.Year(2021)[1].Product.Category {
		t.Error("VINHO DE MESA resolved to two category instances")
	}

	imp, err := b.BuildTrade(mustParse(t, TradeDatasetID(Import, WineTable), tradeCSV), WineTable)
	if err != nil {
		t.Fatalf("BuildTrade import: %v", err)
	}
	exp, err := b.BuildTrade(mustParse(t, TradeDatasetID(Export, GrapeJuice), tradeCSV), GrapeJuice)
	if err != nil {
		t.Fatalf("BuildTrade export: %v", err)
	}
	if imp.Year(2020)[0].Country != exp.Year(2020)[0].Country {
		t.Error("Alemanha resolved to two country instances")
	}
	if exp.Year(2020)[0].Category != GrapeJuice {
		t.Errorf("Category = %v, want GrapeJuice", exp.Year(2020)[0].Category)
	}
}

func TestBuilder_SameNameDifferentCategories(t *testing.T) {
	src := "id;control;produto;2021\n" +
		"1;VINHO DE MESA;VINHO DE MESA;2\n" +
		"2;vm_Tinto;Tinto;1\n" +
		"3;VINHO FINO DE MESA (VINIFERA);VINHO FINO DE MESA (VINIFERA);2\n" +
		"4;vv_Tinto;Tinto;1\n"

	b := NewBuilder()
	c, err := b.BuildProduction(mustParse(t, ProductionDataset, src))
	if err != nil {
		t.Fatalf("BuildProduction: %v", err)
	}
	facts := c.Year(2021)
	if facts[0].Product == facts[1].Product {
		t.Error("Tinto under two categories must be two products")
	}
}

func TestBuilder_NameNormalization(t *testing.T) {
	src := "id;control;produto;2021\n" +
		"1;VINHO DE MESA;VINHO DE MESA;2\n" +
		"2;vm_Tinto;Tinto;1\n"
	other := "id;control;Produto;2021\n" +
		"1;Vinho de  Mesa;Vinho de  Mesa;2\n" +
		"2;vm_TINTO;  tínto ;1\n"

	b := NewBuilder()
	prod, err := b.BuildProduction(mustParse(t, ProductionDataset, src))
	if err != nil {
		t.Fatalf("BuildProduction: %v", err)
	}
	comm, err := b.BuildCommercialization(mustParse(t, CommercializationDataset, other))
	if err != nil {
		t.Fatalf("BuildCommercialization: %v", err)
	}
	p := comm.Year(2021)[0].Product
	if p != prod.Year(2021)[0].Product {
		t.Fatal("names differing in case, accents and spacing must resolve to one product")
	}
	if p.Name != "Tinto" || p.Category.Name != "VINHO DE MESA" {
		t.Errorf("display names = %q/%q, want the first-seen spelling", p.Name, p.Category.Name)
	}
}

func TestBuilder_IntegrityConflicts(t *testing.T) {
	tests := []struct {
		name    string
		dataset DatasetID
		body    string
		line    int
	}{
		{
			name:    "data row before any header",
			dataset: ProductionDataset,
			body:    "id;control;produto;2021\n1;vm_Tinto;Tinto;1\n",
			line:    2,
		},
		{
			name:    "duplicate product in one section",
			dataset: ProductionDataset,
			body:    "id;control;produto;2021\n1;VINHO DE MESA;VINHO DE MESA;2\n2;vm_Tinto;Tinto;1\n3;vm_Tinto;TINTO;1\n",
			line:    4,
		},
		{
			name:    "section repeated with same product",
			dataset: ProductionDataset,
			body:    "id;control;produto;2021\n1;VINHO DE MESA;VINHO DE MESA;1\n2;vm_Tinto;Tinto;1\n3;SUCO;SUCO;1\n4;su_Uva;Uva;1\n5;Vinho de Mesa;Vinho de Mesa;1\n6;vm_Tinto;Tinto;1\n",
			line:    7,
		},
		{
			name:    "duplicate country",
			dataset: TradeDatasetID(Import, Sparkling),
			body:    "Id;País;2021;2021\n1;Chile;1;1\n2;CHILE;1;1\n",
			line:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			p := mustParse(t, tt.dataset, tt.body)
			_, err := b.Build(p)

			var ie *IntegrityConflictError
			if !errors.As(err, &ie) {
				t.Fatalf("err = %v, want *IntegrityConflictError", err)
			}
			if ie.Dataset != tt.dataset {
				t.Errorf("Dataset = %s, want %s", ie.Dataset, tt.dataset)
			}
			if ie.Line != tt.line {
				t.Errorf("Line = %d, want %d", ie.Line, tt.line)
			}
		})
	}
}

func TestBuilder_FailedBuildLeavesTablesUntouched(t *testing.T) {
	b := NewBuilder()
	bad := "id;control;produto;2021\n1;DERIVADOS;DERIVADOS;1\n2;de_Vinagre;Vinagre;1\n3;de_Vinagre;Vinagre;1\n"
	if _, err := b.BuildProduction(mustParse(t, ProductionDataset, bad)); err == nil {
		t.Fatal("expected integrity conflict")
	}
	if len(b.tables.products) != 0 || len(b.tables.categories) != 0 {
		t.Errorf("failed build leaked entities: %d products, %d categories",
			len(b.tables.products), len(b.tables.categories))
	}

	if _, err := b.BuildProduction(mustParse(t, ProductionDataset, productionCSV)); err != nil {
		t.Fatalf("BuildProduction: %v", err)
	}
	if len(b.tables.products) != 3 || len(b.tables.categories) != 2 {
		t.Errorf("tables = %d products, %d categories, want 3 and 2",
			len(b.tables.products), len(b.tables.categories))
	}
}

func TestBuilder_Generation(t *testing.T) {
	b := NewBuilder()
	for id, body := range testSources() {
		if _, err := b.Build(mustParse(t, id, body)); err != nil {
			t.Fatalf("Build %s: %v", id, err)
		}
	}
	gen := b.Generation("gen-1", testTime)

	if gen.ID != "gen-1" {
		t.Errorf("ID = %q", gen.ID)
	}
	if len(gen.Processing) != 4 {
		t.Errorf("len(Processing) = %d, want 4", len(gen.Processing))
	}
	if len(gen.Imports) != 5 || len(gen.Exports) != 5 {
		t.Errorf("trade collections = %d/%d, want 5/5", len(gen.Imports), len(gen.Exports))
	}
	if len(gen.Countries) != 2 {
		t.Errorf("len(Countries) = %d, want 2", len(gen.Countries))
	}
	// Tinto, Branco, Suco de uva adoçado, Rosado
	if len(gen.Products) != 4 {
		t.Errorf("len(Products) = %d, want 4", len(gen.Products))
	}
}
