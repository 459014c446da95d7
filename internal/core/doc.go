// Package core provides the data repository and caching engine for the
// VitiBrasil datasets.
//
// This package is independent of any transport. It receives one byte stream
// per dataset through a [SourceProvider] and answers queries from memory; the
// web layer, the CLI and tests use it unchanged.
//
// # Architecture
//
// The package is organized leaf-first:
//
//   - Domain model: [Category], [Product], [Cultivar], [Country] and the fact
//     types. Names compare through [NormalizeName]; entities keep the display
//     name they were first seen with.
//   - Parser: [Parse] turns a decoded stream into [HeaderRow] and [DataRow]
//     values. [DecodeSource] strips the BOM and validates or decodes the text.
//   - Builder: a [Builder] resolves rows into shared entities and per-dataset
//     [Collection] values indexed by year.
//   - Cache: a [Cache] owns the published [Generation] and coalesces loads.
//   - Queries: [Service] answers the year, category, grape type and trade
//     category lookups.
//
// # Dataset Registry
//
// Datasets are registered at init time using [Register]. Each
// [DatasetDefinition] names its source file, layout and the collection it is
// built into:
//
//	core.Register(core.DatasetDefinition{
//	    ID:       core.ProductionDataset,
//	    Kind:     core.KindProduction,
//	    FileName: "Producao.csv",
//	    Layout:   core.LayoutSectioned,
//	    Order:    10,
//	})
//
// # Loading
//
// A load is all-or-nothing:
//
//  1. Every dataset stream is opened and parsed, in parallel
//  2. The parsed datasets are built in registry order through one Builder
//  3. The new generation replaces the old one with a single pointer swap
//
// Any error aborts the load and the previous generation stays published.
// Concurrent [Cache.Load] and [Cache.EnsureLoaded] calls share one run.
//
// # Error Handling
//
// Load errors are [*LoadError] values wrapping a [*MalformedSourceError],
// an [*IntegrityConflictError] or a source failure. [MapError] maps them to
// user-facing messages with a support code:
//
//   - SRC001-SRC003: Source errors (layout, encoding, unavailable)
//   - INT001: Integrity conflicts
//   - LOAD001-LOAD002: Load errors
//   - REQ001-REQ002, RATE001: Request errors
package core
