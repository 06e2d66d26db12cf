package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every runtime-tunable value for the bridge process,
// bound from flags, environment (VRT_ prefix) and an optional config
// file, in that order of decreasing precedence handled by viper (a flag
// takes part only when it is set explicitly; otherwise its default is the
// fallback).
type Config struct {
	// Translation Listener
	ListenerPort int    `mapstructure:"listener-port"`
	MappingFile  string `mapstructure:"mapping-file"`

	// VRT Backend (passive discovery)
	BackendURI string `mapstructure:"backend-uri"`

	// Diagnostics
	DiagPort   int    `mapstructure:"diag-port"`
	WriteLog   string `mapstructure:"write-log"`

	// NAT
	EnableNAT bool `mapstructure:"enable-nat"`

	// Config file path (optional)
	ConfigFile string `mapstructure:"-"`
}

func defaultWriteLogPath() string {
	return "vrt-writes.log"
}

func Load() (Config, error) {
	var cfg Config
	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = true

	fs.IntP("listener-port", "p", 1234, "UDP port the Translation Listener binds to")
	fs.String("mapping-file", "", "Path to the mapping registry CSV file (optional)")
	fs.String("backend-uri", "vrt://0.0.0.0:1234", "vrt: URI the backend's passive discovery binds to")
	fs.Int("diag-port", 8090, "HTTP port serving the diagnostic websocket")
	fs.String("write-log", defaultWriteLogPath(), "Path to the attribute-write audit log (set empty to disable)")
	fs.Bool("enable-nat", false, "Attempt a UDP port mapping for the listener port via UPnP/NAT-PMP")
	fs.String("config", "", "Path to optional config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `vrtbridged

Usage:
  %s [flags]

Flags:
`, os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  Prefix: VRT_
  Examples:
    VRT_LISTENER_PORT=1234 VRT_MAPPING_FILE=./mappings.csv

Config file:
  Set VRT_CONFIG=/path/to/file.(yaml|json|toml)
  Or place vrtbridged.yaml/json/toml in current directory
`)
	}

	pflag.CommandLine.AddFlagSet(fs)
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("VRT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		fs.Usage()
		os.Exit(2)
	}

	cfgFile := v.GetString("config")
	if envFile := os.Getenv("VRT_CONFIG"); envFile != "" {
		cfgFile = envFile
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("vrtbridged")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err == nil {
		log.Printf("using config file: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	log.Printf("config: listener-port=%d mapping-file=%q backend-uri=%q diag-port=%d write-log=%q nat=%v",
		cfg.ListenerPort, cfg.MappingFile, cfg.BackendURI, cfg.DiagPort, cfg.WriteLog, cfg.EnableNAT)

	if cfg.ListenerPort <= 0 || cfg.ListenerPort > 65535 {
		return cfg, fmt.Errorf("invalid listener port %d", cfg.ListenerPort)
	}

	return cfg, nil
}
