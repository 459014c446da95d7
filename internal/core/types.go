package core

import (
	"context"
	"io"
	"strings"
	"time"
)

// SourceProvider opens the raw byte stream of one dataset.
// Satisfied by source.FS and source.HTTP.
type SourceProvider interface {
	Open(ctx context.Context, id DatasetID) (io.ReadCloser, error)
}

// GrapeType partitions the processing dataset.
type GrapeType int

const (
	Viniferas GrapeType = iota + 1
	AmericanasEHibridas
	UvasDeMesa
	SemClassificacao
)

// GrapeTypes returns every grape type in display order.
func GrapeTypes() []GrapeType {
	return []GrapeType{Viniferas, AmericanasEHibridas, UvasDeMesa, SemClassificacao}
}

// String returns the display value used in API responses.
func (g GrapeType) String() string {
	switch g {
	case Viniferas:
		return "Viniferas"
	case AmericanasEHibridas:
		return "Americanas e Hibridas"
	case UvasDeMesa:
		return "Uvas de Mesa"
	case SemClassificacao:
		return "Sem Classificacao"
	default:
		return "unknown"
	}
}

// Slug returns the URL segment for the grape type.
func (g GrapeType) Slug() string {
	switch g {
	case Viniferas:
		return "viniferas"
	case AmericanasEHibridas:
		return "americanas_e_hibridas"
	case UvasDeMesa:
		return "uvas_de_mesa"
	case SemClassificacao:
		return "sem_classificacao"
	default:
		return ""
	}
}

// ParseGrapeType resolves a slug or display name.
func ParseGrapeType(s string) (GrapeType, bool) {
	key := NormalizeName(s)
	for _, g := range GrapeTypes() {
		if key == g.Slug() || key == NormalizeName(g.String()) {
			return g, true
		}
	}
	return 0, false
}

// TradeCategory partitions the import and export datasets.
type TradeCategory int

const (
	WineTable TradeCategory = iota + 1
	Sparkling
	FreshGrapes
	RaisinGrapes
	GrapeJuice
)

// TradeCategories returns every trade category in display order.
func TradeCategories() []TradeCategory {
	return []TradeCategory{WineTable, Sparkling, FreshGrapes, RaisinGrapes, GrapeJuice}
}

// String returns the display value used in API responses.
func (c TradeCategory) String() string {
	switch c {
	case WineTable:
		return "Vinhos de Mesa"
	case Sparkling:
		return "Espumantes"
	case FreshGrapes:
		return "Uvas Frescas"
	case RaisinGrapes:
		return "Uvas Passas"
	case GrapeJuice:
		return "Suco de Uva"
	default:
		return "unknown"
	}
}

// Slug returns the URL segment for the trade category.
func (c TradeCategory) Slug() string {
	switch c {
	case WineTable:
		return "vinhos_de_mesa"
	case Sparkling:
		return "espumantes"
	case FreshGrapes:
		return "uvas_frescas"
	case RaisinGrapes:
		return "uvas_passas"
	case GrapeJuice:
		return "suco_uva"
	default:
		return ""
	}
}

// ParseTradeCategory resolves a slug or display name. Underscores may stand
// in for spaces ("suco_de_uva").
func ParseTradeCategory(s string) (TradeCategory, bool) {
	key := NormalizeName(s)
	spaced := strings.ReplaceAll(key, "_", " ")
	for _, c := range TradeCategories() {
		if key == c.Slug() || spaced == NormalizeName(c.String()) {
			return c, true
		}
	}
	return 0, false
}

// Direction selects the import or export collection.
type Direction string

const (
	Import Direction = "importacao"
	Export Direction = "exportacao"
)

// Category groups products and cultivars.
type Category struct {
	Name string
}

// Product is an item of the production and commercialization datasets.
type Product struct {
	Name     string
	Category *Category
}

// Cultivar is an item of the processing datasets.
type Cultivar struct {
	Name      string
	Category  *Category
	GrapeType GrapeType
}

// Country is the counterpart of an import or export.
type Country struct {
	Name string
}

// ProductionFact is the quantity (liters) produced of a product in a year.
type ProductionFact struct {
	Year     int
	Quantity float64
	Product  *Product
}

// CommercializationFact is the quantity (liters) sold of a product in a year.
type CommercializationFact struct {
	Year     int
	Quantity float64
	Product  *Product
}

// ProcessingFact is the quantity (kg) of a cultivar processed in a year.
type ProcessingFact struct {
	Year     int
	Quantity float64
	Cultivar *Cultivar
}

// TradeFact is the quantity (kg) and value (US$) traded with a country in a year.
type TradeFact struct {
	Year     int
	Quantity float64
	Value    float64
	Country  *Country
	Category TradeCategory
}

// ProductRecord is a production or commercialization query result.
type ProductRecord struct {
	Year     int     `json:"ano"`
	Quantity float64 `json:"quantidade"`
	Product  string  `json:"produto"`
	Category string  `json:"categoria"`
}

// ProcessingRecord is a processing query result.
type ProcessingRecord struct {
	GrapeType string  `json:"tipo"`
	Year      int     `json:"ano"`
	Quantity  float64 `json:"quantidade"`
	Cultivar  string  `json:"cultivar"`
	Category  string  `json:"categoria"`
}

// TradeRecord is an import or export query result.
type TradeRecord struct {
	Category string  `json:"categoria"`
	Year     int     `json:"ano"`
	Country  string  `json:"pais"`
	Quantity float64 `json:"quantidade"`
	Value    float64 `json:"valor"`
}

// CacheState is the lifecycle state of the cache.
type CacheState string

const (
	StateEmpty    CacheState = "empty"
	StateLoading  CacheState = "loading"
	StateReady    CacheState = "ready"
	StateClearing CacheState = "clearing"
)

// CacheStatus is a point-in-time view of the cache for monitoring.
type CacheStatus struct {
	State        CacheState        `json:"state"`
	GenerationID string            `json:"generationId,omitempty"`
	LoadedAt     *time.Time        `json:"loadedAt,omitempty"`
	Facts        map[DatasetID]int `json:"facts,omitempty"`
	Categories   int               `json:"categories"`
	Products     int               `json:"products"`
	Cultivars    int               `json:"cultivars"`
	Countries    int               `json:"countries"`
	LastError    string            `json:"lastError,omitempty"`
}

// LoadAction identifies what a LoadEvent records.
type LoadAction string

const (
	ActionLoad  LoadAction = "load"
	ActionClear LoadAction = "clear"
)

// LoadEvent describes one completed load or clear.
type LoadEvent struct {
	ID           string            `json:"id"`
	Action       LoadAction        `json:"action"`
	GenerationID string            `json:"generationId,omitempty"`
	Success      bool              `json:"success"`
	StartedAt    time.Time         `json:"startedAt"`
	Duration     time.Duration     `json:"durationNs"`
	Facts        map[DatasetID]int `json:"facts,omitempty"`
	Dataset      DatasetID         `json:"dataset,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// LoadObserver is notified after every load and clear.
type LoadObserver interface {
	ObserveLoad(ctx context.Context, ev LoadEvent)
}
