package restock

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/policy"
	"github.com/footley/eos-bot/internal/gametest"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
)

var toyCo = config.Company{ID: "501", Name: "Toy Co"}

func toyStore(products ...config.Product) config.Store {
	return config.Store{ID: "11", Class: "toys", Products: products}
}

type memJournal struct {
	purchases []Purchase
	err       error
}

func (j *memJournal) Record(_ context.Context, p Purchase) error {
	j.purchases = append(j.purchases, p)
	return j.err
}

func newOrchestrator(b *gametest.Browser, buf *bytes.Buffer) *Orchestrator {
	return NewOrchestrator(b, gametest.Config(toyCo)).WithLogger(zerolog.New(buf))
}

func TestScenarioImportCheaper(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "0"))
	b.Pages[gametest.B2BListing(1)] = gametest.Listing(gametest.B2BRow("Teddy Bear", "50", "20", "$100", "b-1"))
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Teddy Bear", "0", "$40", "i-1"))

	var buf bytes.Buffer
	j := &memJournal{}
	report, err := newOrchestrator(b, &buf).WithJournal(j).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 10, Buy: 50}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}

	want := []string{
		"http://eos.test/import-buy.php?id=i-1&qty=50",
		"http://eos.test/lazy.php?id=11",
	}
	if diff := pretty.Compare(want, b.VisitedURLs()); diff != "" {
		t.Fatalf("visits -want +got:\n%s", diff)
	}
	if len(report.Products) != 1 || report.Products[0].Outcome != Purchased {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(j.purchases) != 1 || j.purchases[0].Channel != "import" || j.purchases[0].Quantity != 50 {
		t.Fatalf("unexpected journal: %+v", j.purchases)
	}
	if !report.Spend().Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("spend = %s, want 2000", report.Spend())
	}
	if !strings.Contains(buf.String(), "buying 50 of 0Q $40 Teddy Bear from import") {
		t.Fatalf("missing purchase log line: %s", buf.String())
	}
}

func TestScenarioB2BCheaperIsClipped(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.OutOfStockTile("Teddy Bear"))
	b.Pages[gametest.B2BListing(1)] = gametest.Listing(gametest.B2BRow("Teddy Bear", "90", "5", "$100", "b-1"))
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Teddy Bear", "0", "$40", "i-1"))

	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 10, Buy: 50}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	if got := b.VisitedURLs()[0]; got != "http://eos.test/b2b-buy.php?id=b-1&qty=5" {
		t.Fatalf("buy url = %s", got)
	}
	p := report.Purchases()
	if len(p) != 1 || p[0].Quantity != 5 || p[0].Channel != "b2b" {
		t.Fatalf("unexpected purchases: %+v", p)
	}
}

func TestRestockTrigger(t *testing.T) {
	tests := []struct {
		qty    string
		visits int
	}{
		{qty: "10", visits: 2},
		{qty: "11", visits: 1},
	}
	for _, test := range tests {
		b := gametest.NewBrowser()
		b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", test.qty))
		b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Teddy Bear", "0", "$40", "i-1"))
		var buf bytes.Buffer
		_, err := newOrchestrator(b, &buf).
			ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 10, Buy: 50}))
		if err != nil {
			t.Fatalf("ProcessStore: %v", err)
		}
		if len(b.Visits) != test.visits {
			t.Errorf("stock %s with min 10: %d visits, want %d", test.qty, len(b.Visits), test.visits)
		}
	}
}

func TestUnknownStockIsIdle(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store()
	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 10, Buy: 50}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	if report.Products[0].Outcome != Idle {
		t.Fatalf("outcome = %s, want idle", report.Products[0].Outcome)
	}
	// only the store page: no listing is read for a product that is not on the shelf
	if len(b.Fetches) != 1 {
		t.Fatalf("fetches = %+v", b.Fetches)
	}
}

func TestNoSupplyContinuesWithNextProduct(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(
		gametest.Tile("Teddy Bear", "0"),
		gametest.Tile("Kite", "0"),
	)
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Kite", "0", "$4", "k-1"))

	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).ProcessStore(context.Background(), toyCo, toyStore(
		config.Product{Name: "Teddy Bear", Min: 1, Buy: 5},
		config.Product{Name: "Kite", Min: 1, Buy: 5},
	))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	got := []Outcome{report.Products[0].Outcome, report.Products[1].Outcome}
	if diff := pretty.Compare([]Outcome{NoSupply, Purchased}, got); diff != "" {
		t.Fatalf("outcomes -want +got:\n%s", diff)
	}
	if !strings.Contains(buf.String(), eoserrors.ErrCodeNoSupply) {
		t.Fatalf("expected NO_SUPPLY warning: %s", buf.String())
	}
}

func TestChannelClosedStopsStore(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "0"), gametest.Tile("Kite", "0"))
	b.Pages[gametest.B2BListing(1)] = gametest.Closed()

	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).ProcessStore(context.Background(), toyCo, toyStore(
		config.Product{Name: "Teddy Bear", Min: 1, Buy: 5},
		config.Product{Name: "Kite", Min: 1, Buy: 5},
	))
	if !eoserrors.IsChannelClosed(err) {
		t.Fatalf("expected channel closed, got %v", err)
	}
	if len(report.Products) != 1 {
		t.Fatalf("processing must stop at the closed market: %+v", report.Products)
	}
	if len(b.Visits) != 0 {
		t.Fatalf("no purchase or bonus after a closed market: %v", b.VisitedURLs())
	}
}

func TestProductErrorsAreContained(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "0"))
	b.Errors[gametest.B2BListing(1)] = errors.New("timeout")

	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 1, Buy: 5}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	if report.Products[0].Outcome != Failed || report.Products[0].Err == nil {
		t.Fatalf("unexpected report: %+v", report.Products[0])
	}
	if diff := pretty.Compare([]string{"http://eos.test/lazy.php?id=11"}, b.VisitedURLs()); diff != "" {
		t.Fatalf("bonus must still be claimed -want +got:\n%s", diff)
	}
}

func TestStorePageFailure(t *testing.T) {
	b := gametest.NewBrowser()
	b.Errors[gametest.StoreURL("11")] = errors.New("502")
	var buf bytes.Buffer
	_, err := newOrchestrator(b, &buf).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 1, Buy: 5}))
	if err == nil || eoserrors.IsChannelClosed(err) {
		t.Fatalf("expected a store-level error, got %v", err)
	}
}

func TestDryRunIssuesNoActions(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "0"))
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Teddy Bear", "0", "$40", "i-1"))

	var buf bytes.Buffer
	j := &memJournal{}
	report, err := newOrchestrator(b, &buf).WithDryRun(true).WithJournal(j).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 1, Buy: 5}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	if len(b.Visits) != 0 {
		t.Fatalf("dry run visited %v", b.VisitedURLs())
	}
	if len(j.purchases) != 1 || !j.purchases[0].DryRun || report.Products[0].Outcome != Purchased {
		t.Fatalf("dry run decision not recorded: %+v", j.purchases)
	}
}

func TestPolicyDeniesPurchase(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "0"))
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(gametest.ImportRow("Teddy Bear", "0", "$40", "i-1"))

	engine := policy.NewEngine()
	engine.AddPolicy(policy.Policy{ID: "cap", Type: policy.PolicyTypeMaxNormalizedPrice, Severity: policy.SeverityError, Threshold: 30, Enabled: true})

	var buf bytes.Buffer
	report, err := newOrchestrator(b, &buf).WithPolicies(engine).
		ProcessStore(context.Background(), toyCo, toyStore(config.Product{Name: "Teddy Bear", Min: 1, Buy: 5}))
	if err != nil {
		t.Fatalf("ProcessStore: %v", err)
	}
	if report.Products[0].Outcome != Denied {
		t.Fatalf("outcome = %s, want denied", report.Products[0].Outcome)
	}
	if diff := pretty.Compare([]string{"http://eos.test/lazy.php?id=11"}, b.VisitedURLs()); diff != "" {
		t.Fatalf("-want +got:\n%s", diff)
	}
}

func TestIdempotentWhenStocked(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.StoreURL("11")] = gametest.Store(gametest.Tile("Teddy Bear", "500"))
	var buf bytes.Buffer
	o := newOrchestrator(b, &buf)
	store := toyStore(config.Product{Name: "Teddy Bear", Min: 10, Buy: 50})
	for i := 0; i < 2; i++ {
		report, err := o.ProcessStore(context.Background(), toyCo, store)
		if err != nil {
			t.Fatalf("ProcessStore: %v", err)
		}
		if len(report.Purchases()) != 0 {
			t.Fatalf("pass %d purchased %+v", i, report.Purchases())
		}
	}
}
