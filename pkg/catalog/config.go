// Package catalog defines the database catalog configuration and the
// connector interface that database drivers plug into.
package catalog

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// Engine kinds recognized by the connector registry.
const (
	EnginePostgres = "postgres"
	EngineMock     = "mock"
)

// ConnectionRef locates credentials for a database. Either EnvVar names an
// environment variable holding a DSN, or the structured fields carry a
// per-engine credential bundle.
type ConnectionRef struct {
	EnvVar   string `yaml:"env_var,omitempty" json:"env_var,omitempty"`
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`
}

// DSN resolves the connection string. Env indirection wins when set.
func (r ConnectionRef) DSN() (string, error) {
	if r.EnvVar != "" {
		dsn := os.Getenv(r.EnvVar)
		if dsn == "" {
			return "", fmt.Errorf("connection env var %s is not set", r.EnvVar)
		}
		return dsn, nil
	}
	if r.Host == "" || r.Database == "" {
		return "", fmt.Errorf("connection ref needs either env_var or host+database")
	}
	port := r.Port
	if port == 0 {
		port = 5432
	}
	sslMode := r.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		r.User, r.Password, r.Host, port, r.Database, sslMode), nil
}

// Timeouts bounds connector operations.
type Timeouts struct {
	ConnectSeconds int `yaml:"connect_seconds" json:"connect_seconds"`
	QuerySeconds   int `yaml:"query_seconds" json:"query_seconds"`
}

// Connect returns the connect timeout with a 10 s default.
func (t Timeouts) Connect() time.Duration {
	if t.ConnectSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.ConnectSeconds) * time.Second
}

// Query returns the general query timeout with a 30 s default. The sampling
// query carries its own hard deadline and does not use this.
func (t Timeouts) Query() time.Duration {
	if t.QuerySeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.QuerySeconds) * time.Second
}

// DatabaseConfig is one catalog entry. Immutable during a run.
type DatabaseConfig struct {
	Name                string        `yaml:"name" json:"name"`
	EngineKind          string        `yaml:"engine_kind" json:"engine_kind"`
	ConnectionRef       ConnectionRef `yaml:"connection_ref" json:"connection_ref"`
	SchemasInclude      []string      `yaml:"schemas_include,omitempty" json:"schemas_include,omitempty"`
	SchemasExclude      []string      `yaml:"schemas_exclude,omitempty" json:"schemas_exclude,omitempty"`
	TablesExclude       []string      `yaml:"tables_exclude,omitempty" json:"tables_exclude,omitempty"`
	IncludeSystemTables bool          `yaml:"include_system_tables,omitempty" json:"include_system_tables,omitempty"`
	Timeouts            Timeouts      `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`
}

// Validate checks one catalog entry.
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.EngineKind, validation.Required,
			validation.In(EnginePostgres, EngineMock)),
	)
}

// PlannerConfig tunes the planner.
type PlannerConfig struct {
	MaxTablesPerDatabase   int    `yaml:"max_tables_per_database" json:"max_tables_per_database"`
	DomainInferenceEnabled bool   `yaml:"domain_inference_enabled" json:"domain_inference_enabled"`
	LLMModel               string `yaml:"llm_model,omitempty" json:"llm_model,omitempty"`
	BatchSize              int    `yaml:"batch_size" json:"batch_size"`
}

// Catalog is the parsed catalog file plus its config hash.
type Catalog struct {
	Databases []DatabaseConfig `yaml:"databases" json:"databases"`
	Planner   PlannerConfig    `yaml:"planner" json:"planner"`

	// ConfigHash is SHA-256 over the raw catalog file bytes. Not serialized;
	// recomputed on load.
	ConfigHash string `yaml:"-" json:"-"`
}

// Validate checks the whole catalog.
func (c *Catalog) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("catalog has no databases")
	}
	seen := map[string]bool{}
	for _, db := range c.Databases {
		if err := db.Validate(); err != nil {
			return fmt.Errorf("database %s: %w", db.Name, err)
		}
		if seen[db.Name] {
			return fmt.Errorf("duplicate database name %s", db.Name)
		}
		seen[db.Name] = true
	}
	return nil
}

// Load reads and validates the catalog file and computes its config hash.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, agenterr.Fatal(agenterr.CodeConfigNotFound,
				"catalog file not found: %s", path).Wrap(err)
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, agenterr.Fatal(agenterr.CodeConfigInvalid,
			"catalog file is not valid YAML").Wrap(err)
	}
	if cat.Planner.BatchSize <= 0 {
		cat.Planner.BatchSize = 20
	}
	if err := cat.Validate(); err != nil {
		return nil, agenterr.Fatal(agenterr.CodeConfigInvalid,
			"catalog failed validation").Wrap(err)
	}

	cat.ConfigHash = models.HashBytes(raw)
	return &cat, nil
}
