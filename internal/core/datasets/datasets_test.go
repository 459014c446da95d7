package datasets

import (
	"testing"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

func TestAllDatasetsRegistered(t *testing.T) {
	// production + 4 processing + commercialization + 5 import + 5 export
	if got := core.DatasetCount(); got != 16 {
		t.Fatalf("DatasetCount() = %d, want 16", got)
	}

	wantKinds := map[core.DatasetKind]int{
		core.KindProduction:        1,
		core.KindProcessing:        4,
		core.KindCommercialization: 1,
		core.KindImport:            5,
		core.KindExport:            5,
	}
	for kind, want := range wantKinds {
		if got := len(core.ByKind(kind)); got != want {
			t.Errorf("ByKind(%s) = %d definitions, want %d", kind, got, want)
		}
	}
}

func TestDefinitionsAreValid(t *testing.T) {
	files := make(map[string]core.DatasetID)
	for _, def := range core.All() {
		if err := def.Validate(); err != nil {
			t.Errorf("%s: %v", def.ID, err)
		}
		if def.FileName == "" {
			t.Errorf("%s: no file name", def.ID)
		}
		if other, dup := files[def.FileName]; dup {
			t.Errorf("%s and %s share file %s", def.ID, other, def.FileName)
		}
		files[def.FileName] = def.ID
	}
}

func TestBuildOrder(t *testing.T) {
	all := core.All()
	if all[0].ID != core.ProductionDataset {
		t.Errorf("first dataset = %s, want %s", all[0].ID, core.ProductionDataset)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Order > all[i].Order {
			t.Errorf("%s (order %d) sorted before %s (order %d)",
				all[i-1].ID, all[i-1].Order, all[i].ID, all[i].Order)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		id       core.DatasetID
		fileName string
	}{
		{core.ProductionDataset, "Producao.csv"},
		{core.CommercializationDataset, "Comercio.csv"},
		{core.ProcessingDatasetID(core.SemClassificacao), "ProcessaSemclass.csv"},
		{core.TradeDatasetID(core.Import, core.GrapeJuice), "ImpSuco.csv"},
		{core.TradeDatasetID(core.Export, core.FreshGrapes), "ExpUva.csv"},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			def, ok := core.Get(tt.id)
			if !ok {
				t.Fatalf("Get(%s) not found", tt.id)
			}
			if def.FileName != tt.fileName {
				t.Errorf("FileName = %s, want %s", def.FileName, tt.fileName)
			}
		})
	}

	if _, ok := core.Get("processamento_rosadas"); ok {
		t.Error("Get found an unregistered dataset")
	}
}
