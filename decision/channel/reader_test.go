package channel

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/pricing"
	"github.com/footley/eos-bot/internal/gametest"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
)

var (
	toyStore = config.Store{ID: "11", Class: "toys"}
	teddy    = config.Product{Name: "Teddy Bear", Min: 10, Buy: 50}
)

func handles(recs []pricing.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Handle)
	}
	return out
}

func TestReadB2BSortsAndParses(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.B2BListing(1)] = gametest.Listing(
		gametest.B2BRow("Kite", "10", "5", "$9", "900"),
	)
	b.Pages[gametest.B2BListing(2)] = gametest.Listing(
		gametest.B2BRow("Teddy Bear", "50", "1,200", "$100", "101"),
		gametest.B2BRow("Teddy Bear", "90", "5", "$100", "102"),
		gametest.B2BRow("Teddy Bear", "0", "20", "$1,040.00", "103"),
		gametest.B2BRow("Yo-yo", "0", "20", "$1", "104"),
	)
	r := NewReader(b, gametest.Config())
	recs, err := r.Read(context.Background(), toyStore, teddy, B2B)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []pricing.Record{
		{Quality: 90, Available: 5, UnitPrice: 100, Normalized: 10, Handle: "102"},
		{Quality: 50, Available: 1200, UnitPrice: 100, Normalized: 50, Handle: "101"},
		{Quality: 0, Available: 20, UnitPrice: 1040, Normalized: 1040, Handle: "103"},
	}
	if diff := pretty.Compare(want, recs); diff != "" {
		t.Fatalf("records -want +got:\n%s", diff)
	}
	// a non-matching row ends the read: page 3 is never requested
	if b.FetchCount(gametest.B2BListing(3)) != 0 {
		t.Fatalf("read past the product family")
	}
	for _, f := range b.Fetches {
		if !f.Cached {
			t.Fatalf("listing pages must be fetched through the cache")
		}
	}
}

func TestReadImportHasUnlimitedStock(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.ImportListing(1)] = gametest.Listing(
		gametest.ImportRow("Teddy Bear", "0", "$40", "7001"),
		gametest.ImportRow("Teddy Bear", "999", "$5", "7002"),
	)
	recs, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, Import)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := pretty.Compare([]string{"7001", "7002"}, handles(recs)); diff != "" {
		t.Fatalf("generic quality must sort last -want +got:\n%s", diff)
	}
	if !math.IsInf(recs[0].Available, 1) {
		t.Fatalf("import availability = %g, want +Inf", recs[0].Available)
	}
	// product family runs to the end of page 1, so page 2 is consulted and
	// has no match, which stops pagination
	if b.FetchCount(gametest.ImportListing(2)) != 1 || b.FetchCount(gametest.ImportListing(3)) != 0 {
		t.Fatalf("unexpected pagination: %+v", b.Fetches)
	}
}

func TestReadContinuesAcrossPages(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.B2BListing(1)] = gametest.Listing(gametest.B2BRow("Teddy Bear", "10", "3", "$50", "1"))
	b.Pages[gametest.B2BListing(2)] = gametest.Listing(gametest.B2BRow("Teddy Bear", "20", "3", "$50", "2"))
	recs, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, B2B)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := pretty.Compare([]string{"2", "1"}, handles(recs)); diff != "" {
		t.Fatalf("-want +got:\n%s", diff)
	}
}

func TestReadNoOffersScansAllPages(t *testing.T) {
	b := gametest.NewBrowser()
	recs, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, B2B)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("expected empty, non-nil result, got %v", recs)
	}
	if len(b.Fetches) != MaxPages {
		t.Fatalf("expected %d pages scanned, got %d", MaxPages, len(b.Fetches))
	}
}

func TestReadMarketClosed(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.ImportListing(1)] = gametest.Closed()
	_, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, Import)
	if !eoserrors.IsChannelClosed(err) {
		t.Fatalf("expected channel closed, got %v", err)
	}
}

func TestReadSkipsUnreadableRows(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[gametest.B2BListing(1)] = gametest.Listing(
		gametest.B2BRow("Teddy Bear", "n/a", "3", "$50", "1"),
		`<tr><td><a href="#">Teddy Bear</a></td><td>x</td><td>10</td><td>3</td><td>$50</td><td>sold</td></tr>`,
		gametest.B2BRow("Teddy Bear", "10", "3", "$50", "3"),
	)
	recs, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, B2B)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := pretty.Compare([]string{"3"}, handles(recs)); diff != "" {
		t.Fatalf("-want +got:\n%s", diff)
	}
}

func TestReadFetchError(t *testing.T) {
	b := gametest.NewBrowser()
	boom := errors.New("connection reset")
	b.Errors[gametest.B2BListing(1)] = boom
	_, err := NewReader(b, gametest.Config()).Read(context.Background(), toyStore, teddy, B2B)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestBuyHandle(t *testing.T) {
	tests := []struct {
		onclick string
		want    string
		ok      bool
	}{
		{onclick: "mB.buyFromMarket(123456, 'b2b')", want: "123456", ok: true},
		{onclick: "mB.buyFromMarket('77',1)", want: "77", ok: true},
		{onclick: "mB.buyFromMarket(42)", want: "42", ok: true},
		{onclick: "mB.buyFromMarket(, 1)", ok: false},
	}
	for _, test := range tests {
		b := gametest.NewBrowser()
		b.Pages["x"] = `<table><tr><td><a onclick="` + test.onclick + `">Buy</a></td></tr></table>`
		doc, _ := b.Document(context.Background(), "x", nil, false)
		got, err := buyHandle(doc.FindByText("a", "Buy").Parent("tr"))
		if (err == nil) != test.ok || got != test.want {
			t.Errorf("buyHandle(%q) = %q, %v", test.onclick, got, err)
		}
	}
}
