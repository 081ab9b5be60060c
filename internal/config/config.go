package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Global configuration structure.
type Global struct {
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat      string `mapstructure:"log_format" yaml:"log_format"`
	NA             string `mapstructure:"na_value" yaml:"na_value"`
	HTTPTimeoutSec int    `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	Database Database `mapstructure:"database" yaml:"database"`

	ResultsDir      string   `mapstructure:"results_dir" yaml:"results_dir"`
	OAEDir          string   `mapstructure:"oae_dir" yaml:"oae_dir"`
	CatalogPath     string   `mapstructure:"catalog_path" yaml:"catalog_path"`
	AllowMissingOAE bool     `mapstructure:"allow_missing_oae" yaml:"allow_missing_oae"`
	Subjects        []string `mapstructure:"subjects" yaml:"subjects"`

	Columns       Columns `mapstructure:"columns" yaml:"columns"`
	FirstBaseline string  `mapstructure:"first_baseline" yaml:"first_baseline"`

	// Conversion rules
	Pairable    []Pairing    `mapstructure:"pairable_conditions" yaml:"pairable_conditions"`
	Rules       []ColumnRule `mapstructure:"column_rules" yaml:"column_rules"`
	Instruments []Instrument `mapstructure:"instruments" yaml:"instruments"`
	OAE         OAE          `mapstructure:"oae" yaml:"oae"`
	Reference   Reference    `mapstructure:"reference" yaml:"reference"`
}

// Database locates the wide session table. Exactly one of Path, URL or URLFile is used.
type Database struct {
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	URLFile   string `mapstructure:"url_file" yaml:"url_file"`
	URLColumn string `mapstructure:"url_column" yaml:"url_column"`
	Sheet     string `mapstructure:"sheet" yaml:"sheet"`
}

// Columns names the administrative columns of the database.
type Columns struct {
	Subject   string `mapstructure:"subject" yaml:"subject"`
	Date      string `mapstructure:"date" yaml:"date"`
	Session   string `mapstructure:"session" yaml:"session"`
	Protocol  string `mapstructure:"protocol" yaml:"protocol"`
	Condition string `mapstructure:"condition" yaml:"condition"`
	Scan      string `mapstructure:"scan" yaml:"scan"`
	// Boundary is the first instrument-bearing column; synthetic sessions blank it and everything after.
	Boundary string `mapstructure:"boundary" yaml:"boundary"`
}

// Pairing maps a pairable condition to the label of its synthetic companion session.
type Pairing struct {
	Condition string `mapstructure:"condition" yaml:"condition"`
	Paired    string `mapstructure:"paired" yaml:"paired"`
}

// ColumnRule assigns database columns to an instrument side.
type ColumnRule struct {
	Match      string `mapstructure:"match" yaml:"match"` // prefix or suffix
	Pattern    string `mapstructure:"pattern" yaml:"pattern"`
	Instrument string `mapstructure:"instrument" yaml:"instrument"`
	Side       int    `mapstructure:"side" yaml:"side"`
}

// Instrument describes a test stored inline in the database.
type Instrument struct {
	Name         string     `mapstructure:"name" yaml:"name"`
	SideCodes    []string   `mapstructure:"side_codes" yaml:"side_codes"`
	Fields       []string   `mapstructure:"fields" yaml:"fields"`
	Sentinels    []Sentinel `mapstructure:"sentinels" yaml:"sentinels,omitempty"`
	DecimalComma bool       `mapstructure:"decimal_comma" yaml:"decimal_comma,omitempty"`
}

// Sentinel replaces a numeric raw value with a label.
type Sentinel struct {
	Value       float64 `mapstructure:"value" yaml:"value"`
	Replacement string  `mapstructure:"replacement" yaml:"replacement"`
}

// OAE configures the external per-test export files.
type OAE struct {
	Delimiter          string       `mapstructure:"delimiter" yaml:"delimiter"`
	PostScanCondition  string       `mapstructure:"post_scan_condition" yaml:"post_scan_condition"`
	PostScanMarker     string       `mapstructure:"post_scan_marker" yaml:"post_scan_marker"`
	ExcludedConditions []string     `mapstructure:"excluded_conditions" yaml:"excluded_conditions"`
	EarPairs           []EarPair    `mapstructure:"ear_pairs" yaml:"ear_pairs"`
	Growth             GrowthFamily `mapstructure:"growth" yaml:"growth"`
}

// EarPair is a file family with one export per ear.
type EarPair struct {
	Name        string     `mapstructure:"name" yaml:"name"`
	RightSuffix string     `mapstructure:"right_suffix" yaml:"right_suffix"`
	LeftSuffix  string     `mapstructure:"left_suffix" yaml:"left_suffix"`
	Fields      []OAEField `mapstructure:"fields" yaml:"fields"`
}

// GrowthFamily is the DP growth family with multi-frequency and single-frequency sessions.
type GrowthFamily struct {
	Name             string             `mapstructure:"name" yaml:"name"`
	RightSuffix      string             `mapstructure:"right_suffix" yaml:"right_suffix"`
	LeftSuffix       string             `mapstructure:"left_suffix" yaml:"left_suffix"`
	Frequencies      []string           `mapstructure:"frequencies" yaml:"frequencies"`
	SingleFrequency  string             `mapstructure:"single_frequency" yaml:"single_frequency"`
	SingleConditions []string           `mapstructure:"single_conditions" yaml:"single_conditions"`
	PrePost          []PrePostCondition `mapstructure:"pre_post" yaml:"pre_post"`
	Fields           []OAEField         `mapstructure:"fields" yaml:"fields"`
}

// PrePostCondition binds a condition to the filename marker its growth exports carry.
type PrePostCondition struct {
	Condition string `mapstructure:"condition" yaml:"condition"`
	Marker    string `mapstructure:"marker" yaml:"marker"`
}

// OAEField is an output column: a copied source column or a derived value.
type OAEField struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Source   string   `mapstructure:"source" yaml:"source,omitempty"`
	Derive   string   `mapstructure:"derive" yaml:"derive,omitempty"` // ratio or difference
	Operands []string `mapstructure:"operands" yaml:"operands,omitempty"`
	Divisor  float64  `mapstructure:"divisor" yaml:"divisor,omitempty"`
}

// Reference configures the per-subject sessions table.
type Reference struct {
	PresentMarker string            `mapstructure:"present_marker" yaml:"present_marker"`
	AbsentMarker  string            `mapstructure:"absent_marker" yaml:"absent_marker"`
	Columns       []ReferenceColumn `mapstructure:"columns" yaml:"columns"`
}

// ReferenceColumn is one completeness flag of the sessions table.
type ReferenceColumn struct {
	Name          string  `mapstructure:"name" yaml:"name"`
	Instrument    string  `mapstructure:"instrument" yaml:"instrument"`
	ReadbackField string  `mapstructure:"readback_field" yaml:"readback_field,omitempty"`
	ReadbackValue float64 `mapstructure:"readback_value" yaml:"readback_value,omitempty"`
}

// DefaultPath is ~/.audiobids/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".audiobids", "config.yaml"), nil
}

// Default returns the embedded defaults.
func Default() (*Global, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// DefaultYAML returns the embedded default configuration document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultsYAML))
	copy(out, defaultsYAML)
	return out
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.audiobids/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from the embedded defaults, a config file and env.
// An explicit cfgFile must exist; the home config is optional.
func Load(cfgFile string) (*Global, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	v.SetEnvPrefix("AUDIOBIDS")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", statErr)
		}
	}
	return decode(v)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Global, error) {
	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// InstrumentByName returns the inline instrument with that name.
func (c *Global) InstrumentByName(name string) (Instrument, bool) {
	for _, in := range c.Instruments {
		if in.Name == name {
			return in, true
		}
	}
	return Instrument{}, false
}
