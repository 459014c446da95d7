// Package datasets registers the VitiBrasil dataset definitions with the core
// registry. Import this package to ensure all datasets are registered.
package datasets

import "github.com/JonMunkholm/vitibrasil/internal/core"

func init() {
	registerProduction()
	registerProcessing()
	registerCommercialization()
	registerTrade()
}

func registerProduction() {
	core.Register(core.DatasetDefinition{
		ID:       core.ProductionDataset,
		Kind:     core.KindProduction,
		Label:    "Produção",
		FileName: "Producao.csv",
		Layout:   core.LayoutSectioned,
		Order:    10,
	})
}

func registerProcessing() {
	files := map[core.GrapeType]string{
		core.Viniferas:           "ProcessaViniferas.csv",
		core.AmericanasEHibridas: "ProcessaAmericanas.csv",
		core.UvasDeMesa:          "ProcessaMesa.csv",
		core.SemClassificacao:    "ProcessaSemclass.csv",
	}
	for i, g := range core.GrapeTypes() {
		core.Register(core.DatasetDefinition{
			ID:        core.ProcessingDatasetID(g),
			Kind:      core.KindProcessing,
			Label:     "Processamento - " + g.String(),
			FileName:  files[g],
			Layout:    core.LayoutSectioned,
			Order:     20 + i,
			GrapeType: g,
		})
	}
}

func registerCommercialization() {
	core.Register(core.DatasetDefinition{
		ID:       core.CommercializationDataset,
		Kind:     core.KindCommercialization,
		Label:    "Comercialização",
		FileName: "Comercio.csv",
		Layout:   core.LayoutSectioned,
		Order:    30,
	})
}

func registerTrade() {
	importFiles := map[core.TradeCategory]string{
		core.WineTable:    "ImpVinhos.csv",
		core.Sparkling:    "ImpEspumantes.csv",
		core.FreshGrapes:  "ImpFrescas.csv",
		core.RaisinGrapes: "ImpPassas.csv",
		core.GrapeJuice:   "ImpSuco.csv",
	}
	exportFiles := map[core.TradeCategory]string{
		core.WineTable:    "ExpVinho.csv",
		core.Sparkling:    "ExpEspumantes.csv",
		core.FreshGrapes:  "ExpUva.csv",
		core.RaisinGrapes: "ExpPassas.csv",
		core.GrapeJuice:   "ExpSuco.csv",
	}

	for i, c := range core.TradeCategories() {
		core.Register(core.DatasetDefinition{
			ID:            core.TradeDatasetID(core.Import, c),
			Kind:          core.KindImport,
			Label:         "Importação - " + c.String(),
			FileName:      importFiles[c],
			Layout:        core.LayoutTrade,
			Order:         40 + i,
			TradeCategory: c,
		})
		core.Register(core.DatasetDefinition{
			ID:            core.TradeDatasetID(core.Export, c),
			Kind:          core.KindExport,
			Label:         "Exportação - " + c.String(),
			FileName:      exportFiles[c],
			Layout:        core.LayoutTrade,
			Order:         50 + i,
			TradeCategory: c,
		})
	}
}
