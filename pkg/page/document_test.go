package page

import (
	"regexp"
	"testing"
)

const listing = `<html><body>
<table>
  <tr class="head"><th>Product</th></tr>
  <tr id="r1"><td><a href="#">Teddy Bear</a></td><td>10</td></tr>
  <tr id="r2"><td><a href="#">Teddy Bear</a></td><td>20</td></tr>
  <tr id="r3"><td><a href="#">Yo-yo</a></td><td>30</td></tr>
</table>
<div class="prod_choices_item big"><img title="Kite"><span>
  Out of Stock </span></div>
<p>Cost: $1,200 per week</p>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestSiblingWalk(t *testing.T) {
	doc := mustParse(t, listing)
	row := doc.FindByText("a", "Teddy Bear").Parent("tr")
	var ids []string
	for ; row.Exists(); row = row.NextSibling() {
		id, _ := row.Attr("id")
		ids = append(ids, id)
	}
	if len(ids) != 3 || ids[0] != "r1" || ids[2] != "r3" {
		t.Fatalf("unexpected walk: %v", ids)
	}
	cells := doc.FindByText("a", "Yo-yo").Parent("tr").Children("td")
	if len(cells) != 2 || cells[1].Text() != "30" {
		t.Fatalf("unexpected cells: %d", len(cells))
	}
}

func TestMissingNodesAreSafe(t *testing.T) {
	doc := mustParse(t, listing)
	n := doc.FindByText("a", "Nothing").Parent("tr").NextSibling()
	if n.Exists() || n.Text() != "" || n.HTML() != "" || len(n.Children("td")) != 0 {
		t.Fatalf("missing node should be inert")
	}
	if _, ok := n.Attr("id"); ok {
		t.Fatalf("missing node has no attributes")
	}
}

func TestTextLookups(t *testing.T) {
	doc := mustParse(t, listing)
	div := doc.FindByAttr("img", "title", "Kite").ParentWithClass("div", "prod_choices_item")
	if !div.Exists() {
		t.Fatalf("expected enclosing div")
	}
	if !div.HasText("Out of Stock") {
		t.Fatalf("expected out of stock marker")
	}
	if doc.FindByText("a", "Yo-yo").HasText("Out of Stock") {
		t.Fatalf("marker leaked to unrelated node")
	}
	got, ok := doc.MatchText(regexp.MustCompile(`\$[0-9]+,?[0-9]*`))
	if !ok || got != "Cost: $1,200 per week" {
		t.Fatalf("MatchText = %q, %v", got, ok)
	}
	if doc.FindByAttrPrefix("tr", "id", "r").HTML() == "" {
		t.Fatalf("expected prefix match")
	}
}
