package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every configuration variable.
const DefaultEnvPrefix = "INSPECTOR_"

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is a .toml, .yaml or .yml config file. Empty skips the file layer.
	File string

	// EnvFile is a dotenv file. Empty reads ".env" when it exists.
	EnvFile string

	// Prefix overrides DefaultEnvPrefix.
	Prefix string

	// LookupEnv overrides os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves the configuration from defaults, the config file, the
// dotenv file and the environment, then validates it.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		if err := decodeFile(opts.File, &cfg); err != nil {
			return cfg, err
		}
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return cfg, err
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	env := func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}
	if err := applyEnv(&cfg, prefix, env); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// decodeFile overlays the fields present in path onto cfg.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return vars, nil
}

type envField struct {
	name  string
	apply func(cfg *Config, v string) error
}

var envFields = []envField{
	{"LISTEN", func(c *Config, v string) error { c.Listen = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.LogFormat = strings.ToLower(v); return nil }},
	{"CONSOLE_CAPACITY", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.ConsoleCapacity = n
		return err
	}},
	{"SETTINGS_DB", func(c *Config, v string) error { c.SettingsDB = v; return nil }},
	{"PAGE_GROUP", func(c *Config, v string) error { c.PageGroup = v; return nil }},
	{"DEVELOPER_EXTRAS", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.DeveloperExtras = b
		return err
	}},
	{"ALLOWED_ORIGINS", func(c *Config, v string) error {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
		return nil
	}},
}

func applyEnv(cfg *Config, prefix string, lookup func(string) (string, bool)) error {
	for _, f := range envFields {
		name := prefix + f.name
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := f.apply(cfg, v); err != nil {
			return &ParseError{Path: name, Message: err.Error(), Err: err}
		}
	}
	return nil
}
