package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	CascadeNone     = "none"
	CascadeChildren = "children"

	// EnvPrefix prefixes every environment variable Resolve reads.
	EnvPrefix = "MEDIATORPRO_"
)

type Arguments struct {
	// The directory holding the database file
	DataDir string `yaml:"dataDir" mapstructure:"dataDir"`

	// The database file name, without extension
	DatabaseName string `yaml:"databaseName" mapstructure:"databaseName"`

	// The schema version to open the store at. Zero means the latest version.
	SchemaVersion int `yaml:"schemaVersion" mapstructure:"schemaVersion"`

	// How long a write waits on another session's lock
	BusyTimeout time.Duration `yaml:"busyTimeout" mapstructure:"busyTimeout"`

	// Log file directory. Empty logs to stdout only.
	LogDir string `yaml:"logDir" mapstructure:"logDir"`

	// Journal directory. Empty disables the write journal.
	JournalDir           string `yaml:"journalDir" mapstructure:"journalDir"`
	JournalRetentionDays int    `yaml:"journalRetentionDays" mapstructure:"journalRetentionDays"`
	MaxJournalFileSize   int64  `yaml:"maxJournalFileSize" mapstructure:"maxJournalFileSize"`

	// Strongly verbose logging
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	Debug   bool `yaml:"debug" mapstructure:"debug"`

	// Print log messages to screen as well as the log file
	PrintToScreen bool `yaml:"printToScreen" mapstructure:"printToScreen"`

	// Where to write store metrics in Prometheus text format on exit.
	// Empty disables the dump.
	MetricsFile string `yaml:"metricsFile" mapstructure:"metricsFile"`

	// What deleting a matter does to its notes, documents, files and timeline:
	// none, children
	CascadePolicy string `yaml:"cascadePolicy" mapstructure:"cascadePolicy"`

	ConfigFile string `yaml:"-" mapstructure:"-"`
}

var (
	instance *Arguments
	once     sync.Once
	mu       sync.Mutex
)

// GetSettings returns the process-wide settings, initialized with defaults
// on first use.
func GetSettings() *Arguments {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		instance = Defaults()
	})
	return instance
}

// ResetSettings discards the process-wide settings. Used by tests.
func ResetSettings() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// Defaults returns the built-in settings.
func Defaults() *Arguments {
	return &Arguments{
		DataDir:              "./datafiles",
		DatabaseName:         "mediatorpro",
		BusyTimeout:          5 * time.Second,
		JournalRetentionDays: 30,
		MaxJournalFileSize:   1000000,
		PrintToScreen:        true,
		CascadePolicy:        CascadeNone,
	}
}

// RegisterFlags binds the command line flags to a.
func (a *Arguments) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.DataDir, "datadir", a.DataDir, "Directory to store the database file")
	fs.StringVar(&a.DatabaseName, "name", a.DatabaseName, "Database name")
	fs.IntVar(&a.SchemaVersion, "schema-version", a.SchemaVersion, "Schema version to open (0 = latest)")
	fs.DurationVar(&a.BusyTimeout, "busy-timeout", a.BusyTimeout, "How long to wait on a locked database")
	fs.StringVar(&a.LogDir, "logdir", a.LogDir, "Directory to store log files (default: stdout)")
	fs.StringVar(&a.JournalDir, "journaldir", a.JournalDir, "Directory to store write journals (default: disabled)")
	fs.IntVar(&a.JournalRetentionDays, "journal-retention", a.JournalRetentionDays, "Days to keep journal files")
	fs.Int64Var(&a.MaxJournalFileSize, "maxjournalfilesize", a.MaxJournalFileSize, "Maximum size of journal files in bytes")
	fs.BoolVar(&a.Verbose, "verbose", a.Verbose, "Enable verbose logging")
	fs.BoolVar(&a.Debug, "debug", a.Debug, "Enable debug mode")
	fs.BoolVar(&a.PrintToScreen, "print", a.PrintToScreen, "Print log messages to screen")
	fs.StringVar(&a.MetricsFile, "metrics-file", a.MetricsFile, "Write Prometheus metrics to this file on exit")
	fs.StringVar(&a.CascadePolicy, "cascade", a.CascadePolicy, "Matter delete policy (none, children)")
	fs.StringVar(&a.ConfigFile, "config", a.ConfigFile, "Path to YAML config file")
}

// settingKeys ties each config file key to its flag and environment
// variable (without EnvPrefix).
var settingKeys = []struct {
	key, flag, env string
}{
	{"dataDir", "datadir", "DATA_DIR"},
	{"databaseName", "name", "DATABASE_NAME"},
	{"schemaVersion", "schema-version", "SCHEMA_VERSION"},
	{"busyTimeout", "busy-timeout", "BUSY_TIMEOUT"},
	{"logDir", "logdir", "LOG_DIR"},
	{"journalDir", "journaldir", "JOURNAL_DIR"},
	{"journalRetentionDays", "journal-retention", "JOURNAL_RETENTION_DAYS"},
	{"maxJournalFileSize", "maxjournalfilesize", "MAX_JOURNAL_FILE_SIZE"},
	{"verbose", "verbose", "VERBOSE"},
	{"debug", "debug", "DEBUG"},
	{"printToScreen", "print", "PRINT_TO_SCREEN"},
	{"metricsFile", "metrics-file", "METRICS_FILE"},
	{"cascadePolicy", "cascade", "CASCADE_POLICY"},
	{"configFile", "config", "CONFIG_FILE"},
}

// Resolve layers the config file and the environment under the flags the
// user set explicitly: flags > environment > config file > current values.
// envFiles are loaded into the environment first; fs may be nil.
func (a *Arguments) Resolve(fs *pflag.FlagSet, envFiles ...string) error {
	if err := LoadEnv(envFiles...); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	v.AutomaticEnv()
	for key, value := range a.values() {
		v.SetDefault(key, value)
	}
	for _, k := range settingKeys {
		if err := v.BindEnv(k.key, EnvPrefix+k.env); err != nil {
			return fmt.Errorf("failed to bind %s%s: %w", EnvPrefix, k.env, err)
		}
		if fs == nil {
			continue
		}
		if f := fs.Lookup(k.flag); f != nil {
			if err := v.BindPFlag(k.key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", k.flag, err)
			}
		}
	}

	configFile := v.GetString("configFile")
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(a); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	a.ConfigFile = configFile
	return a.Validate()
}

// values is a as config key/value pairs, the lowest layer Resolve starts from.
func (a *Arguments) values() map[string]any {
	return map[string]any{
		"dataDir":              a.DataDir,
		"databaseName":         a.DatabaseName,
		"schemaVersion":        a.SchemaVersion,
		"busyTimeout":          a.BusyTimeout,
		"logDir":               a.LogDir,
		"journalDir":           a.JournalDir,
		"journalRetentionDays": a.JournalRetentionDays,
		"maxJournalFileSize":   a.MaxJournalFileSize,
		"verbose":              a.Verbose,
		"debug":                a.Debug,
		"printToScreen":        a.PrintToScreen,
		"metricsFile":          a.MetricsFile,
		"cascadePolicy":        a.CascadePolicy,
		"configFile":           a.ConfigFile,
	}
}

// LoadEnv loads the given .env files into the process environment. Missing
// files are skipped and variables already set win over .env entries.
func LoadEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// WriteYAML writes a in config file form, so the output of one run can be
// saved as the config file of the next.
func (a *Arguments) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}

// Validate checks the settings for values the store cannot work with.
func (a *Arguments) Validate() error {
	if a.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if a.DatabaseName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if a.SchemaVersion < 0 {
		return fmt.Errorf("invalid schema version: %d", a.SchemaVersion)
	}
	if a.BusyTimeout < 0 {
		return fmt.Errorf("invalid busy timeout: %s", a.BusyTimeout)
	}
	if a.JournalRetentionDays < 0 {
		return fmt.Errorf("invalid journal retention: %d days", a.JournalRetentionDays)
	}
	if a.MaxJournalFileSize < 0 {
		return fmt.Errorf("invalid max journal file size: %d", a.MaxJournalFileSize)
	}
	switch a.CascadePolicy {
	case CascadeNone, CascadeChildren:
	default:
		return fmt.Errorf("invalid cascade policy: %s (must be '%s' or '%s')", a.CascadePolicy, CascadeNone, CascadeChildren)
	}
	return nil
}
