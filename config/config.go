// Package config loads and validates the restocker configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/platform"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = "economies_of_scale.config"

// URL template keys
const (
	URLLogin         = "login"
	URLHome          = "home"
	URLSwitchCompany = "switch_company"
	URLStoreInv      = "store_inv"
	URLB2BStore      = "b2b_store"
	URLImportStore   = "import_store"
	URLB2BBuy        = "b2b_buy"
	URLImportBuy     = "import_buy"
	URLStoreBonus    = "store_lazyx2"
	URLResearchPage  = "r&d_page"
)

var requiredURLs = []string{
	URLLogin, URLHome, URLSwitchCompany, URLStoreInv,
	URLB2BStore, URLImportStore, URLB2BBuy, URLImportBuy, URLStoreBonus,
}

// Config is the whole configuration file.
type Config struct {
	Username  string                `json:"username"`
	Password  string                `json:"password"`
	LogFile   string                `json:"log-file"`
	LogLevel  string                `json:"log-level"`
	PacingMs  *int                  `json:"pacing-ms"`
	CookieJar string                `json:"cookie-file"`
	URLs      map[string]string     `json:"urls"`
	Classes   map[string]ChannelIDs `json:"store_classes"`
	Companies []Company             `json:"companies"`
	Stores    []Store               `json:"stores"`
	Policies  []Policy              `json:"policies"`
	PolicyDir string                `json:"policy-dir"`
	DryRun    bool                  `json:"dry-run"`
}

// ChannelIDs maps a store class to the listing ids of both supply channels.
type ChannelIDs struct {
	B2B    int `json:"b2b_id"`
	Import int `json:"import_id"`
}

// Company groups stores under one active firm.
type Company struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Stores          []Store          `json:"stores"`
	ResearchCenters []ResearchCenter `json:"r&d centers"`
}

// Store is one retail outlet and the products tracked in it.
type Store struct {
	ID       string    `json:"id"`
	Class    string    `json:"class"`
	Products []Product `json:"products"`
}

// Product is a tracked product of a store.
type Product struct {
	Name string  `json:"name"`
	Min  FlexInt `json:"min"`
	Buy  FlexInt `json:"buy"`
}

// ResearchCenter is an R&D centre and the topics worth researching there.
type ResearchCenter struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Topics []Topic `json:"topics"`
}

// Topic is a research topic, matched by its image title.
type Topic struct {
	Name string `json:"name"`
}

// Policy is a purchase guardrail; see decision/policy.
type Policy struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
	Threshold float64 `json:"threshold"`
	Enabled   bool    `json:"enabled"`
}

// FlexInt accepts both 25 and "25".
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("not an integer: %q", s)
		}
		*f = FlexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// Load reads, decodes and validates the configuration at path.
// Every failure is a fatal BAD_CONFIG error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eoserrors.NewConfigError(path, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates configuration bytes; path is only used in errors.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, eoserrors.NewConfigError(path, err)
	}
	cfg.Username = platform.GetEnv("EOS_USERNAME", cfg.Username)
	cfg.Password = platform.GetEnv("EOS_PASSWORD", cfg.Password)
	pacing := platform.GetEnvInt("EOS_PACING_MS", int(cfg.Pacing()/time.Millisecond))
	cfg.PacingMs = &pacing
	cfg.DryRun = platform.GetEnvBool("EOS_DRY_RUN", cfg.DryRun)
	if err := cfg.Validate(); err != nil {
		return nil, eoserrors.NewConfigError(path, err)
	}
	return &cfg, nil
}

// Validate checks the structural requirements the restocker relies on.
func (c *Config) Validate() error {
	if c.PacingMs != nil && *c.PacingMs <= 0 {
		return fmt.Errorf("pacing-ms must be > 0, got %d", *c.PacingMs)
	}
	for _, key := range requiredURLs {
		if strings.TrimSpace(c.URLs[key]) == "" {
			return fmt.Errorf("missing url %q", key)
		}
	}
	if len(c.Companies) == 0 && len(c.Stores) == 0 {
		return fmt.Errorf("no companies or stores configured")
	}
	for _, company := range c.Targets() {
		for _, store := range company.Stores {
			if store.ID == "" {
				return fmt.Errorf("company %q: store without id", company.Name)
			}
			if _, ok := c.Classes[store.Class]; !ok {
				return fmt.Errorf("store %s: unknown class %q", store.ID, store.Class)
			}
			for _, p := range store.Products {
				if p.Name == "" {
					return fmt.Errorf("store %s: product without name", store.ID)
				}
				if p.Min < 0 {
					return fmt.Errorf("store %s: product %q: min must be >= 0", store.ID, p.Name)
				}
				if p.Buy <= 0 {
					return fmt.Errorf("store %s: product %q: buy must be > 0", store.ID, p.Name)
				}
			}
		}
		if len(company.ResearchCenters) > 0 && c.URLs[URLResearchPage] == "" {
			return fmt.Errorf("company %q has r&d centers but url %q is missing", company.Name, URLResearchPage)
		}
	}
	return nil
}

// Targets returns the company topology. A flat "stores" list becomes one
// implicit company with an empty ID, for which no firm switch is issued.
func (c *Config) Targets() []Company {
	companies := make([]Company, 0, len(c.Companies)+1)
	companies = append(companies, c.Companies...)
	if len(c.Stores) > 0 {
		companies = append(companies, Company{Name: "default", Stores: c.Stores})
	}
	return companies
}

// URL expands the named template with positional arguments.
func (c *Config) URL(key string, args ...any) string {
	return Expand(c.URLs[key], args...)
}

// Pacing is the delay inserted before every request.
func (c *Config) Pacing() time.Duration {
	if c.PacingMs == nil {
		return time.Second
	}
	return time.Duration(*c.PacingMs) * time.Millisecond
}

// CookieFile is where session cookies are persisted between runs.
func (c *Config) CookieFile() string {
	if c.CookieJar == "" {
		return "cookie.txt"
	}
	return c.CookieJar
}

// Expand replaces {0}, {1}, ... in tmpl with the given arguments.
func Expand(tmpl string, args ...any) string {
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for i, a := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", fmt.Sprint(a))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
