package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// testDefinitions mirrors the production registry without importing it.
func testDefinitions() []DatasetDefinition {
	defs := []DatasetDefinition{
		{ID: ProductionDataset, Kind: KindProduction, FileName: "Producao.csv", Layout: LayoutSectioned, Order: 10},
		{ID: CommercializationDataset, Kind: KindCommercialization, FileName: "Comercio.csv", Layout: LayoutSectioned, Order: 30},
	}
	for i, g := range GrapeTypes() {
		defs = append(defs, DatasetDefinition{
			ID: ProcessingDatasetID(g), Kind: KindProcessing, Layout: LayoutSectioned, Order: 20 + i, GrapeType: g,
		})
	}
	for i, c := range TradeCategories() {
		defs = append(defs,
			DatasetDefinition{ID: TradeDatasetID(Import, c), Kind: KindImport, Layout: LayoutTrade, Order: 40 + i, TradeCategory: c},
			DatasetDefinition{ID: TradeDatasetID(Export, c), Kind: KindExport, Layout: LayoutTrade, Order: 50 + i, TradeCategory: c},
		)
	}
	return defs
}

func testDefinition(id DatasetID) DatasetDefinition {
	for _, def := range testDefinitions() {
		if def.ID == id {
			return def
		}
	}
	panic("unknown test dataset " + string(id))
}

const productionCSV = `id;control;produto;2020;2021
1;VINHO DE MESA;VINHO DE MESA;300;146075996
2;vm_Tinto;Tinto;200;146075996
3;vm_Branco;Branco;100;0
4;SUCO;SUCO;50;40450
5;su_Suco de uva adoçado;Suco de uva adoçado;50;40450
6;Total;Total;350;146116446
`

const commercializationCSV = `id;control;Produto;2020;2021
1;VINHO DE MESA;VINHO DE MESA;50;60
2;vm_Tinto;Tinto;30;40
3;vm_Rosado;Rosado;20;20
`

const processingViniferasCSV = "id\tcontrol\tcultivar\t2020\t2021\n" +
	"1\tTINTAS\tTINTAS\t10\t20\n" +
	"2\tti_Alicante Bouschet\tAlicante Bouschet\t10\t20\n" +
	"3\tBRANCAS E ROSADAS\tBRANCAS E ROSADAS\t5\t6\n" +
	"4\tbr_Moscato\tMoscato\t5\t6\n"

const processingAmericanasCSV = "id\tcontrol\tcultivar\t2020\t2021\n" +
	"1\tTINTAS\tTINTAS\t1.000\t2.000\n" +
	"2\tti_Bordo\tBordo\t1.000\t2.000\n"

const processingMesaCSV = "id\tcontrol\tcultivar\t2020\t2021\n" +
	"1\tTINTAS\tTINTAS\t3\t4\n" +
	"2\tti_Isabel\tIsabel\t3\t4\n"

const processingSemClassCSV = "id\tcontrol\tcultivar\t2020\t2021\n" +
	"1\tSem classificação\tSem classificação\t7\tnd\n"

const tradeCSV = `Id;País;2020;2020;2021;2021
1;Alemanha;10;100;20;200
2;Japão;nd;;5;50
`

// testSources returns a full set of valid streams.
func testSources() map[DatasetID]string {
	files := map[DatasetID]string{
		ProductionDataset:                        productionCSV,
		CommercializationDataset:                 commercializationCSV,
		ProcessingDatasetID(Viniferas):           processingViniferasCSV,
		ProcessingDatasetID(AmericanasEHibridas): processingAmericanasCSV,
		ProcessingDatasetID(UvasDeMesa):          processingMesaCSV,
		ProcessingDatasetID(SemClassificacao):    processingSemClassCSV,
	}
	for _, c := range TradeCategories() {
		files[TradeDatasetID(Import, c)] = tradeCSV
		files[TradeDatasetID(Export, c)] = tradeCSV
	}
	return files
}

// memSource serves streams from memory and counts opens per dataset.
type memSource struct {
	mu    sync.Mutex
	files map[DatasetID]string
	opens map[DatasetID]int
	delay time.Duration
	gate  chan struct{} // When set, Open blocks until it is closed
}

func newMemSource(files map[DatasetID]string) *memSource {
	return &memSource{files: files, opens: make(map[DatasetID]int)}
}

func (m *memSource) Open(ctx context.Context, id DatasetID) (io.ReadCloser, error) {
	m.mu.Lock()
	m.opens[id]++
	body, ok := m.files[id]
	gate, delay := m.gate, m.delay
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, fmt.Errorf("no such dataset %s", id)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memSource) set(id DatasetID, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = body
}

func (m *memSource) openCount(id DatasetID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[id]
}

// recordingObserver collects load events.
type recordingObserver struct {
	mu     sync.Mutex
	events []LoadEvent
}

func (r *recordingObserver) ObserveLoad(_ context.Context, ev LoadEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) Events() []LoadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LoadEvent, len(r.events))
	copy(out, r.events)
	return out
}

func parseString(def DatasetDefinition, body string) (*ParsedDataset, error) {
	return Parse(def, strings.NewReader(body))
}
