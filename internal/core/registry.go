package core

import (
	"fmt"
	"sort"
	"sync"
)

// DatasetID identifies one of the source datasets, e.g. "producao" or
// "importacao_vinhos_de_mesa".
type DatasetID string

const (
	ProductionDataset        DatasetID = "producao"
	CommercializationDataset DatasetID = "comercializacao"
)

// ProcessingDatasetID returns the ID of the processing dataset of a grape type.
func ProcessingDatasetID(g GrapeType) DatasetID {
	return DatasetID("processamento_" + g.Slug())
}

// TradeDatasetID returns the ID of an import or export dataset.
func TradeDatasetID(d Direction, c TradeCategory) DatasetID {
	return DatasetID(string(d) + "_" + c.Slug())
}

// DatasetKind selects the fact collection a dataset is built into.
type DatasetKind int

const (
	KindProduction DatasetKind = iota + 1
	KindProcessing
	KindCommercialization
	KindImport
	KindExport
)

func (k DatasetKind) String() string {
	switch k {
	case KindProduction:
		return "production"
	case KindProcessing:
		return "processing"
	case KindCommercialization:
		return "commercialization"
	case KindImport:
		return "import"
	case KindExport:
		return "export"
	default:
		return "unknown"
	}
}

// Layout is the column convention of a source file.
type Layout int

const (
	// LayoutSectioned files carry id, control and item columns followed by one
	// column per year. Rows without a control prefix are section headers.
	LayoutSectioned Layout = iota + 1

	// LayoutTrade files carry id and country columns followed by a
	// quantity/value column pair per year.
	LayoutTrade
)

// DatasetDefinition contains everything needed to load one dataset.
type DatasetDefinition struct {
	ID       DatasetID
	Kind     DatasetKind
	Label    string // Display name: "Produção"
	FileName string // Source file: "Producao.csv"
	Layout   Layout
	Order    int // Build order within a load

	GrapeType     GrapeType     // KindProcessing only
	TradeCategory TradeCategory // KindImport and KindExport only
}

// Validate checks that the definition is internally consistent.
func (d DatasetDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dataset definition without id")
	}
	switch d.Kind {
	case KindProduction, KindCommercialization:
		if d.Layout != LayoutSectioned {
			return fmt.Errorf("dataset %s: %s requires the sectioned layout", d.ID, d.Kind)
		}
	case KindProcessing:
		if d.Layout != LayoutSectioned {
			return fmt.Errorf("dataset %s: %s requires the sectioned layout", d.ID, d.Kind)
		}
		if d.GrapeType.Slug() == "" {
			return fmt.Errorf("dataset %s: missing grape type", d.ID)
		}
	case KindImport, KindExport:
		if d.Layout != LayoutTrade {
			return fmt.Errorf("dataset %s: %s requires the trade layout", d.ID, d.Kind)
		}
		if d.TradeCategory.Slug() == "" {
			return fmt.Errorf("dataset %s: missing trade category", d.ID)
		}
	default:
		return fmt.Errorf("dataset %s: unknown kind %d", d.ID, d.Kind)
	}
	return nil
}

var (
	registry   = make(map[DatasetID]DatasetDefinition)
	registryMu sync.RWMutex
)

// Register adds a dataset definition to the registry.
// Panics if the definition is invalid or its ID is already registered.
func Register(def DatasetDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if err := def.Validate(); err != nil {
		panic(err.Error())
	}
	if _, exists := registry[def.ID]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.ID))
	}

	registry[def.ID] = def
}

// Get returns a dataset definition by ID.
func Get(id DatasetID) (DatasetDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[id]
	return def, ok
}

// All returns all registered dataset definitions in build order.
func All() []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sortDefinitions(result)
	return result
}

// ByKind returns the registered definitions of one kind in build order.
func ByKind(kind DatasetKind) []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []DatasetDefinition
	for _, def := range registry {
		if def.Kind == kind {
			result = append(result, def)
		}
	}
	sortDefinitions(result)
	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

func sortDefinitions(defs []DatasetDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Order != defs[j].Order {
			return defs[i].Order < defs[j].Order
		}
		return defs[i].ID < defs[j].ID
	})
}
