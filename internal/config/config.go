// Package config loads the single YAML configuration file named on the
// command line into the recognized subsystem sections from spec.md
// section 6. It does no wiring itself; cmd/modguard translates each
// section into the narrow Config struct the owning package expects.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logging selects the output file and severity threshold.
type Logging struct {
	Filename string `yaml:"filename"`
	Level    string `yaml:"level"`
}

// Datasource names the firehose host to subscribe to.
type Datasource struct {
	Hosts        string `yaml:"hosts"`
	Port         int    `yaml:"port"`
	Subscription string `yaml:"subscription"`
}

// Metrics exposes the Prometheus listener port.
type Metrics struct {
	Port int `yaml:"port"`
}

// ModerationData is the upstream moderation database connection, whose
// keys are joined into a space-separated "k=v" libpq-style string.
type ModerationData struct {
	DB map[string]string `yaml:"db"`
}

// ConnectionString renders the db map as a libpq keyword/value string.
func (m ModerationData) ConnectionString() string {
	keys := make([]string, 0, len(m.DB))
	for k := range m.DB {
		keys = append(keys, k)
	}
	// Stable order keeps the rendered string (and therefore logs) deterministic.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m.DB[k]))
	}
	return strings.Join(parts, " ")
}

// AuxiliaryData is the auxiliary database (cursor, rules, hosts) DSN.
type AuxiliaryData struct {
	ConnectionString string `yaml:"connection_string"`
}

// AutoReporter configures the moderation-service session and reporting
// behavior.
type AutoReporter struct {
	Handle     string `yaml:"handle"`
	Password   string `yaml:"password"`
	Did        string `yaml:"did"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ServiceDid string `yaml:"service_did"`
	DryRun     bool   `yaml:"dry_run"`
}

// EmbedChecker configures the embed/link analyzer worker pool.
type EmbedChecker struct {
	FollowLinks     bool `yaml:"follow_links"`
	NumberOfThreads int  `yaml:"number_of_threads"`
}

// ListManager configures the modlist-maintaining session.
type ListManager struct {
	Handle    string `yaml:"handle"`
	Password  string `yaml:"password"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	ClientDid string `yaml:"client_did"`
	DryRun    bool   `yaml:"dry_run"`
}

// Filters selects where match_filters rows come from.
type Filters struct {
	UseDB    bool   `yaml:"use_db"`
	Filename string `yaml:"filename"`
}

// ProgramConfig is the full recognized YAML surface.
type ProgramConfig struct {
	User            string          `yaml:"user"`
	Group           string          `yaml:"group"`
	Logging         Logging         `yaml:"logging"`
	Datasource      Datasource      `yaml:"datasource"`
	Metrics         Metrics         `yaml:"metrics"`
	ModerationData  ModerationData  `yaml:"moderation_data"`
	AuxiliaryData   AuxiliaryData   `yaml:"auxiliary_data"`
	AutoReporter    AutoReporter    `yaml:"auto_reporter"`
	EmbedChecker    EmbedChecker    `yaml:"embed_checker"`
	ListManager     ListManager     `yaml:"list_manager"`
	Filters         Filters         `yaml:"filters"`
}

// Keys holds defaults overwritten by Init. Mirrors the teacher's
// package-level Keys convention rather than threading a struct through
// every constructor call.
var Keys = ProgramConfig{
	Logging: Logging{Level: "info"},
	Metrics: Metrics{Port: 2112},
	Datasource: Datasource{
		Port:         443,
		Subscription: "/subscribe",
	},
	EmbedChecker: EmbedChecker{NumberOfThreads: 5},
}

// Init reads and validates the YAML file at path, overwriting Keys.
func Init(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if Keys.Datasource.Hosts == "" {
		return fmt.Errorf("config: datasource.hosts is required")
	}
	if Keys.AuxiliaryData.ConnectionString == "" {
		return fmt.Errorf("config: auxiliary_data.connection_string is required")
	}
	return nil
}
