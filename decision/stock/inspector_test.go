package stock

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/internal/gametest"
	"github.com/footley/eos-bot/pkg/page"
)

func mustParse(t *testing.T, html string) *page.Document {
	t.Helper()
	doc, err := page.ParseString(html)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestInspect(t *testing.T) {
	storePage := gametest.Store(
		gametest.Tile("Teddy Bear", "12,345"),
		gametest.OutOfStockTile("Kite"),
		gametest.Tile("Yo-yo", "lots"),
		`<img title="Marble">`,
	)
	tests := []struct {
		product string
		want    Level
		warns   bool
	}{
		{product: "Teddy Bear", want: 12345},
		{product: "Kite", want: OutOfStock},
		{product: "Yo-yo", want: Unknown, warns: true},
		{product: "Marble", want: Unknown, warns: true},
		{product: "Rocking Horse", want: Unknown, warns: true},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		in := NewInspector(zerolog.New(&buf))
		got := in.Inspect(mustParse(t, storePage), config.Product{Name: test.product, Min: 5, Buy: 10})
		if got != test.want {
			t.Errorf("Inspect(%q) = %s, want %s", test.product, got, test.want)
		}
		if warned := strings.Contains(buf.String(), `"level":"warn"`); warned != test.warns {
			t.Errorf("Inspect(%q): warned = %v, want %v (log %s)", test.product, warned, test.warns, buf.String())
		}
	}
}

func TestInspectMissingProductLogsName(t *testing.T) {
	var buf bytes.Buffer
	NewInspector(zerolog.New(&buf)).Inspect(mustParse(t, gametest.Store()), config.Product{Name: "Rocking Horse"})
	if !strings.Contains(buf.String(), "could not find product") || !strings.Contains(buf.String(), "Rocking Horse") {
		t.Fatalf("unexpected log: %s", buf.String())
	}
}

func TestNeedsRestock(t *testing.T) {
	const min = 10
	tests := []struct {
		level Level
		want  bool
	}{
		{level: OutOfStock, want: true},
		{level: 1, want: true},
		{level: min, want: true},
		{level: min + 1, want: false},
		{level: 5000, want: false},
		{level: Unknown, want: false},
	}
	for _, test := range tests {
		if got := test.level.NeedsRestock(min); got != test.want {
			t.Errorf("Level(%s).NeedsRestock(%d) = %v, want %v", test.level, min, got, test.want)
		}
	}
	if !OutOfStock.NeedsRestock(0) {
		t.Errorf("an empty shelf is always restocked")
	}
	if Level(1).NeedsRestock(0) {
		t.Errorf("stock above a zero minimum must not be restocked")
	}
}
