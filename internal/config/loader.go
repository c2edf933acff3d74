package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names searched in the working directory.
const (
	ConfigFileName    = "livegate.yaml"
	ConfigFileNameAlt = "livegate.yml"
)

// findConfigFile finds the config file to use.
// Priority: explicit path > livegate.yaml > livegate.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	if _, err := os.Stat(ConfigFileNameAlt); err == nil {
		return ConfigFileNameAlt
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment variables (LIVEGATE_ prefix)
	// Transform: LIVEGATE_ENGINE__DSN -> engine.dsn
	if err := k.Load(env.Provider("LIVEGATE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "LIVEGATE_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to dotted config keys:
			// --engine-type -> engine.type, --port -> listen.port
			switch f.Name {
			case "host", "port":
				return "listen." + f.Name, posflag.FlagVal(flags, f)
			case "session-secret":
				return "session_secret", posflag.FlagVal(flags, f)
			}
			key := strings.Replace(f.Name, "-", ".", 1)
			key = strings.ReplaceAll(key, "-", "_")
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Secrets in the DSN may reference environment variables.
	cfg.Engine.DSN = expandEnvVars(cfg.Engine.DSN)
	cfg.SessionSecret = expandEnvVars(cfg.SessionSecret)

	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns with environment variable
// values, leaving unknown references untouched.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
