package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rs/zerolog"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/internal/gametest"
)

const rndURL = "http://eos.test/rnd.php?id=81"

var lab = config.ResearchCenter{
	ID:   "81",
	Name: "Toy Lab",
	Topics: []config.Topic{
		{Name: "Teddy Bear"},
		{Name: "Kite"},
		{Name: "Yo-yo"},
	},
}

func topic(name, cost, extra string) string {
	return fmt.Sprintf(`<div class="rnd_topic"><a href="rnd-start.php?topic=%s"><img src="t.png" title="%s"></a>`+
		`<span>Cost: %s</span>%s</div>`, strings.ToLower(name), name, cost, extra)
}

func rndPage(body ...string) string {
	return `<html><body>` + strings.Join(body, "\n") + `</body></html>`
}

func newKickstarter(b *gametest.Browser, buf *bytes.Buffer) *Kickstarter {
	return NewKickstarter(b, gametest.Config()).WithLogger(zerolog.New(buf))
}

func TestProcessStartsCheapestTopic(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[rndURL] = rndPage(
		topic("Teddy Bear", "$12,000", ""),
		topic("Kite", "$9,500", ""),
		topic("Yo-yo", "$100", "<p>Currently being researched at another R&amp;D centre</p>"),
	)
	var buf bytes.Buffer
	got, err := newKickstarter(b, &buf).Process(context.Background(), lab)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != Started {
		t.Fatalf("outcome = %s, want started", got)
	}
	if diff := pretty.Compare([]string{"http://eos.test/rnd-start.php?topic=kite"}, b.VisitedURLs()); diff != "" {
		t.Fatalf("-want +got:\n%s", diff)
	}
	if !strings.Contains(buf.String(), "R&D Centre Toy Lab starting to research Kite") {
		t.Fatalf("unexpected log: %s", buf.String())
	}
}

func TestProcessStates(t *testing.T) {
	tests := []struct {
		desc string
		page string
		want Outcome
	}{
		{
			desc: "already researching",
			page: rndPage(`<p>Time remaining: 3 days</p>`, topic("Kite", "$9", "")),
			want: Busy,
		},
		{
			desc: "being expanded",
			page: rndPage(`<a href="rnd-expand-status.php?frid=81">Expansion</a>`, topic("Kite", "$9", "")),
			want: Expanding,
		},
		{
			desc: "every topic elsewhere",
			page: rndPage(topic("Kite", "$9", "<p>Currently being researched at another centre</p>")),
			want: NoTopic,
		},
		{
			desc: "no configured topic on the page",
			page: rndPage(topic("Marble", "$9", "")),
			want: NoTopic,
		},
	}
	for _, test := range tests {
		b := gametest.NewBrowser()
		b.Pages[rndURL] = test.page
		var buf bytes.Buffer
		got, err := newKickstarter(b, &buf).Process(context.Background(), lab)
		if err != nil {
			t.Fatalf("%s: Process: %v", test.desc, err)
		}
		if got != test.want {
			t.Errorf("%s: outcome = %s, want %s", test.desc, got, test.want)
		}
		if len(b.Visits) != 0 {
			t.Errorf("%s: unexpected visits %v", test.desc, b.VisitedURLs())
		}
	}
}

func TestDryRunDoesNotStart(t *testing.T) {
	b := gametest.NewBrowser()
	b.Pages[rndURL] = rndPage(topic("Kite", "$9", ""))
	var buf bytes.Buffer
	got, err := newKickstarter(b, &buf).WithDryRun(true).Process(context.Background(), lab)
	if err != nil || got != Started {
		t.Fatalf("Process = %s, %v", got, err)
	}
	if len(b.Visits) != 0 {
		t.Fatalf("dry run visited %v", b.VisitedURLs())
	}
}

func TestRunContainsCentreFailures(t *testing.T) {
	b := gametest.NewBrowser()
	b.Errors[rndURL] = errors.New("reset")
	b.Pages["http://eos.test/rnd.php?id=82"] = rndPage(topic("Kite", "$9", ""))
	company := config.Company{
		ID:   "501",
		Name: "Toy Co",
		ResearchCenters: []config.ResearchCenter{
			lab,
			{ID: "82", Name: "Kite Lab", Topics: []config.Topic{{Name: "Kite"}}},
		},
	}
	var buf bytes.Buffer
	got := newKickstarter(b, &buf).Run(context.Background(), company)
	if diff := pretty.Compare(map[string]Outcome{"82": Started}, got); diff != "" {
		t.Fatalf("-want +got:\n%s", diff)
	}
}
