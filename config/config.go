/*
Package config resolves the engine configuration from defaults, an optional
YAML file and environment variables, in that order.

PURPOSE:
The defaults describe the published INDEC dataset 145 endpoints and the
knobs the original loader ran with. A YAML file overrides whatever keys it
names; environment variables override the file. Command-line flags in
cmd/server take final precedence over everything here.

ENVIRONMENT:
  IPC_DB                    sqlite database path
  IPC_START_DATE            first month to load ("2023-12-01" or "2023-12")
  IPC_HTTP_TIMEOUT_SECONDS  per-attempt fetch timeout
  IPC_SOURCES               inline YAML list replacing the source table

SEE ALSO:
- pipeline/run.go: consumes the resolved configuration
- cmd/server/main.go: flag handling
*/
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/austral/ipc-engine/series"
)

// Roles a source can play in the pipeline. Incidence sources feed fact
// slots directly; index sources feed the month-over-month derivation.
const (
	RoleIncidence = "incidence"
	RoleIndex     = "index"
)

var axes = map[string]series.Axis{
	"headline":       series.AxisHeadline,
	"division":       series.AxisDivision,
	"goods_services": series.AxisGoodsServices,
}

// SourceSpec describes one CSV endpoint and how its columns are read.
type SourceSpec struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Axis     string `yaml:"axis"`
	Role     string `yaml:"role"`
	Priority int    `yaml:"priority"`
}

// AxisValue maps the configured axis string onto the column grammar.
func (s SourceSpec) AxisValue() (series.Axis, bool) {
	a, ok := axes[s.Axis]
	return a, ok
}

// Config carries every knob the engine reads at startup.
type Config struct {
	DBPath             string       `yaml:"db"`
	StartDate          string       `yaml:"start_date"`
	HTTPTimeoutSeconds int          `yaml:"http_timeout_seconds"`
	TiePolicy          string       `yaml:"tie_policy"`
	Sources            []SourceSpec `yaml:"sources"`
}

// Default returns the configuration the engine runs with when nothing else
// is supplied: the four dataset 145 distributions, a 60s fetch timeout and
// the original loader's start date.
func Default() Config {
	return Config{
		DBPath:             "ipc.db",
		StartDate:          "2023-12-01",
		HTTPTimeoutSeconds: 60,
		TiePolicy:          string(series.TieFirstWins),
		Sources: []SourceSpec{
			{
				Name:     "divisions-incidence",
				URL:      "http://infra.datos.gob.ar/catalog/sspm/dataset/145/distribution/145.10/download/ipc-incidencia-absoluta-mensual-region-capitulo.csv",
				Axis:     "division",
				Role:     RoleIncidence,
				Priority: 1,
			},
			{
				Name:     "goods-services-incidence",
				URL:      "http://infra.datos.gob.ar/catalog/sspm/dataset/145/distribution/145.11/download/ipc-incidencia-mensual-bienes-servicios.csv",
				Axis:     "goods_services",
				Role:     RoleIncidence,
				Priority: 1,
			},
			{
				Name:     "headline-incidence",
				URL:      "http://infra.datos.gob.ar/catalog/sspm/dataset/145/distribution/145.12/download/ipc-incidencia-categorias-nivel-general.csv",
				Axis:     "headline",
				Role:     RoleIncidence,
				Priority: 2,
			},
			{
				Name:     "headline-index",
				URL:      "http://infra.datos.gob.ar/catalog/sspm/dataset/145/distribution/145.3/download/ipc-nivel-general-categorias-indice.csv",
				Axis:     "headline",
				Role:     RoleIndex,
				Priority: 1,
			},
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path if
// one is given, then environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("IPC_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("IPC_START_DATE"); v != "" {
		cfg.StartDate = v
	}
	if v := os.Getenv("IPC_HTTP_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse IPC_HTTP_TIMEOUT_SECONDS")
		}
		cfg.HTTPTimeoutSeconds = n
	}
	if v := os.Getenv("IPC_SOURCES"); v != "" {
		var sources []SourceSpec
		if err := yaml.Unmarshal([]byte(v), &sources); err != nil {
			return errors.Wrap(err, "parse IPC_SOURCES")
		}
		cfg.Sources = sources
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("config: db path is empty")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return errors.Errorf("config: http timeout must be positive, got %d", c.HTTPTimeoutSeconds)
	}
	if _, err := series.ParseMonth(c.StartDate); err != nil {
		return errors.Wrapf(err, "config: start_date %q", c.StartDate)
	}
	if !series.TiePolicy(c.TiePolicy).Valid() {
		return errors.Errorf("config: unknown tie_policy %q", c.TiePolicy)
	}
	if len(c.Sources) == 0 {
		return errors.New("config: no sources configured")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return errors.New("config: source with empty name")
		}
		if seen[s.Name] {
			return errors.Errorf("config: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.URL == "" {
			return errors.Errorf("config: source %s has no url", s.Name)
		}
		if _, ok := s.AxisValue(); !ok {
			return errors.Errorf("config: source %s has unknown axis %q", s.Name, s.Axis)
		}
		if s.Role != RoleIncidence && s.Role != RoleIndex {
			return errors.Errorf("config: source %s has unknown role %q", s.Name, s.Role)
		}
		if s.Priority <= 0 {
			return errors.Errorf("config: source %s has non-positive priority %d", s.Name, s.Priority)
		}
	}
	return nil
}

// HTTPTimeout returns the per-attempt fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// StartMonth returns the configured start date as a month. Validation
// guarantees the date parses; a zero month means no lower bound.
func (c Config) StartMonth() series.Month {
	m, err := series.ParseMonth(c.StartDate)
	if err != nil {
		return series.Month{}
	}
	return m
}

// Policy returns the configured reconciliation tie policy.
func (c Config) Policy() series.TiePolicy {
	return series.TiePolicy(c.TiePolicy)
}
