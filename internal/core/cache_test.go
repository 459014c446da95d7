package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(src SourceProvider, observers ...LoadObserver) *Cache {
	return NewCache(src, testDefinitions(), CacheOptions{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observers: observers,
		Now:       func() time.Time { return testTime },
	})
}

func TestCache_InitialState(t *testing.T) {
	c := newTestCache(newMemSource(testSources()))

	if c.Snapshot() != nil {
		t.Error("new cache should have no generation")
	}
	st := c.Status()
	if st.State != StateEmpty {
		t.Errorf("State = %s, want empty", st.State)
	}
	if st.GenerationID != "" || st.LoadedAt != nil {
		t.Errorf("empty status carries generation data: %+v", st)
	}
}

func TestCache_Load(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestCache(newMemSource(testSources()), obs)

	gen, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gen.ID == "" {
		t.Error("generation has no ID")
	}
	if c.Snapshot() != gen {
		t.Error("Snapshot does not return the published generation")
	}

	st := c.Status()
	if st.State != StateReady {
		t.Errorf("State = %s, want ready", st.State)
	}
	if len(st.Facts) != 16 {
		t.Errorf("len(Facts) = %d, want 16 datasets", len(st.Facts))
	}
	if st.Facts[ProductionDataset] != 6 {
		t.Errorf("production facts = %d, want 6", st.Facts[ProductionDataset])
	}

	events := obs.Events()
	if len(events) != 1 || events[0].Action != ActionLoad || !events[0].Success {
		t.Fatalf("events = %+v, want one successful load", events)
	}
	if events[0].GenerationID != gen.ID {
		t.Errorf("event generation = %s, want %s", events[0].GenerationID, gen.ID)
	}
}

func TestCache_Idempotence(t *testing.T) {
	svc := NewService(newTestCache(newMemSource(testSources())))
	ctx := context.Background()

	snapshot := func() []any {
		prod, _ := svc.ProductionByYear(ctx, 2021)
		proc, _ := svc.ProcessingByYearAndGrapeType(ctx, 2020, AmericanasEHibridas)
		trade, _ := svc.TradeByYearAndCategory(ctx, 2021, Sparkling, Export)
		total, _ := svc.ProductionTotalByCategory(ctx, "VINHO DE MESA", 2021)
		return []any{prod, proc, trade, total}
	}

	if _, err := svc.Load(ctx); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	first := snapshot()
	firstGen := svc.Cache().Snapshot()

	if _, err := svc.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	second := snapshot()

	if svc.Cache().Snapshot() == firstGen {
		t.Error("reload should publish a new generation")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ between loads:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCache_EntitySharing(t *testing.T) {
	c := newTestCache(newMemSource(testSources()))
	gen, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	categories := make(map[string]*Category)
	products := make(map[productKey]*Product)
	countries := make(map[string]*Country)

	checkCategory := func(cat *Category) {
		key := NormalizeName(cat.Name)
		if prev, ok := categories[key]; ok && prev != cat {
			t.Errorf("category %q has two instances", cat.Name)
		}
		categories[key] = cat
	}
	checkProduct := func(p *Product) {
		checkCategory(p.Category)
		key := productKey{NormalizeName(p.Category.Name), NormalizeName(p.Name)}
		if prev, ok := products[key]; ok && prev != p {
			t.Errorf("product %q has two instances", p.Name)
		}
		products[key] = p
	}

	for _, f := range gen.Production.All() {
		checkProduct(f.Product)
	}
	for _, f := range gen.Commercialization.All() {
		checkProduct(f.Product)
	}
	for _, coll := range gen.Processing {
		for _, f := range coll.All() {
			checkCategory(f.Cultivar.Category)
		}
	}
	for _, colls := range []map[TradeCategory]*Collection[TradeFact]{gen.Imports, gen.Exports} {
		for _, coll := range colls {
			for _, f := range coll.All() {
				key := NormalizeName(f.Country.Name)
				if prev, ok := countries[key]; ok && prev != f.Country {
					t.Errorf("country %q has two instances", f.Country.Name)
				}
				countries[key] = f.Country
			}
		}
	}

	if len(countries) != 2 {
		t.Errorf("countries = %d, want 2", len(countries))
	}
	// "TINTAS" is shared by three processing files.
	if len(gen.Categories) != len(categories) {
		t.Errorf("generation lists %d categories, facts cite %d", len(gen.Categories), len(categories))
	}
}

func TestCache_ConcurrentLoadsCoalesce(t *testing.T) {
	src := newMemSource(testSources())
	src.gate = make(chan struct{})
	obs := &recordingObserver{}
	c := newTestCache(src, obs)

	const callers = 20
	var wg sync.WaitGroup
	gens := make([]*Generation, callers)
	errs := make([]error, callers)
	started := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			if i%2 == 0 {
				gens[i], errs[i] = c.Load(context.Background())
			} else {
				gens[i], errs[i] = c.EnsureLoaded(context.Background())
			}
		}(i)
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	// Give every caller time to join the flight before sources respond.
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if gens[i] != gens[0] {
			t.Errorf("caller %d observed a different generation", i)
		}
	}
	for _, def := range testDefinitions() {
		if n := src.openCount(def.ID); n != 1 {
			t.Errorf("%s opened %d times, want 1", def.ID, n)
		}
	}
	if n := len(obs.Events()); n != 1 {
		t.Errorf("observed %d loads, want 1", n)
	}
}

func TestCache_ClearThenQuery(t *testing.T) {
	src := newMemSource(testSources())
	obs := &recordingObserver{}
	c := newTestCache(src, obs)
	svc := NewService(c)
	ctx := context.Background()

	if _, err := c.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Clear(ctx)
	if st := c.Status(); st.State != StateEmpty {
		t.Fatalf("State after Clear = %s, want empty", st.State)
	}
	if c.Snapshot() != nil {
		t.Fatal("Clear left a generation published")
	}

	records, err := svc.ProductionByYear(ctx, 2021)
	if err != nil {
		t.Fatalf("ProductionByYear: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("query after Clear returned no data")
	}
	if _, err := svc.ProductionByYear(ctx, 2020); err != nil {
		t.Fatalf("second query: %v", err)
	}

	if n := src.openCount(ProductionDataset); n != 2 {
		t.Errorf("production opened %d times, want 2 (initial load + one reload)", n)
	}
	events := obs.Events()
	var loads, clears int
	for _, ev := range events {
		switch ev.Action {
		case ActionLoad:
			loads++
		case ActionClear:
			clears++
		}
	}
	if loads != 2 || clears != 1 {
		t.Errorf("loads = %d, clears = %d, want 2 and 1", loads, clears)
	}
}

func TestCache_ClearFromEmpty(t *testing.T) {
	c := newTestCache(newMemSource(testSources()))
	c.Clear(context.Background())
	c.Clear(context.Background())
	if st := c.Status(); st.State != StateEmpty {
		t.Errorf("State = %s, want empty", st.State)
	}
}

func TestCache_FailedReloadKeepsGeneration(t *testing.T) {
	src := newMemSource(testSources())
	obs := &recordingObserver{}
	c := newTestCache(src, obs)
	ctx := context.Background()

	good, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bad := TradeDatasetID(Export, FreshGrapes)
	src.set(bad, "Id;País;2020;2020\n1;Chile;abc;1\n")

	_, err = c.Load(ctx)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if le.Dataset != bad {
		t.Errorf("Dataset = %s, want %s", le.Dataset, bad)
	}
	var me *MalformedSourceError
	if !errors.As(err, &me) {
		t.Errorf("cause = %v, want *MalformedSourceError", err)
	}

	if c.Snapshot() != good {
		t.Error("failed reload replaced the published generation")
	}
	st := c.Status()
	if st.State != StateReady {
		t.Errorf("State = %s, want ready", st.State)
	}
	if st.LastError == "" {
		t.Error("LastError not recorded")
	}

	events := obs.Events()
	last := events[len(events)-1]
	if last.Success || last.Dataset != bad {
		t.Errorf("last event = %+v, want failure for %s", last, bad)
	}
}

func TestCache_FailedColdLoad(t *testing.T) {
	src := newMemSource(testSources())
	src.set(ProcessingDatasetID(UvasDeMesa), "id\tcontrol\tcultivar\t2020\n1\tti_Isabel\tIsabel\t3\n")
	c := newTestCache(src)
	svc := NewService(c)

	_, err := svc.ProductionByYear(context.Background(), 2021)
	var ie *IntegrityConflictError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *IntegrityConflictError", err)
	}
	if DatasetOf(err) != ProcessingDatasetID(UvasDeMesa) {
		t.Errorf("DatasetOf = %s", DatasetOf(err))
	}
	if st := c.Status(); st.State != StateEmpty {
		t.Errorf("State = %s, want empty", st.State)
	}
}

func TestCache_MissingSource(t *testing.T) {
	files := testSources()
	delete(files, CommercializationDataset)
	c := newTestCache(newMemSource(files))

	_, err := c.Load(context.Background())
	if DatasetOf(err) != CommercializationDataset {
		t.Fatalf("err = %v, want failure for %s", err, CommercializationDataset)
	}
	if got := MapError(err).Code; got != "SRC003" {
		t.Errorf("MapError code = %s, want SRC003", got)
	}
}

func TestCache_WaiterContextCancelled(t *testing.T) {
	src := newMemSource(testSources())
	src.gate = make(chan struct{})
	c := newTestCache(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The load itself keeps running and publishes.
	close(src.gate)
	gen, err := c.EnsureLoaded(context.Background())
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if gen == nil {
		t.Fatal("no generation after the detached load finished")
	}
	if n := src.openCount(ProductionDataset); n != 1 {
		t.Errorf("production opened %d times, want 1", n)
	}
}
