// Package config loads the path settings and server options for the explorer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultConfigFile = "data/config.yaml"

// Paths are the named data locations. The core treats them as opaque lookups.
type Paths struct {
	GroupData    string `mapstructure:"group_data"`
	DataFolder   string `mapstructure:"data_folder"`
	AnnotatedBed string `mapstructure:"annotated_bed"`
	TopGenes     string `mapstructure:"top_genes"`
}

type Settings struct {
	Paths  Paths `mapstructure:"paths"`
	Server struct {
		Port int    `mapstructure:"port"`
		Mode string `mapstructure:"mode"`
	} `mapstructure:"server"`
	Log struct {
		Mode string `mapstructure:"mode"`
	} `mapstructure:"log"`
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`
	Cache struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`
	Samples struct {
		BarcodePattern string `mapstructure:"barcode_pattern"`
		Workers        int    `mapstructure:"workers"`
	} `mapstructure:"samples"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.group_data", "data/groups.csv")
	v.SetDefault("paths.data_folder", "data/samples")
	v.SetDefault("paths.annotated_bed", "data/promoters.csv")
	v.SetDefault("paths.top_genes", "data/gene_variation.csv")
	v.SetDefault("server.port", 5100)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.mode", "development")
	v.SetDefault("store.path", "")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("samples.barcode_pattern", `\d+`)
	v.SetDefault("samples.workers", 4)
}

// Load reads configFile (YAML) on top of the defaults. A missing file is not an error when
// configFile is the default location; environment variables prefixed with METHYL_ override
// both, e.g. METHYL_PATHS_DATA_FOLDER.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("METHYL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		configFile = DefaultConfigFile
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !(configFile == DefaultConfigFile && isNotExist(err)) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate checks the settings that would otherwise fail late, deep inside ingestion.
func Validate(s *Settings) error {
	if s.Paths.GroupData == "" {
		return errors.New("paths.group_data must be set")
	}
	if s.Paths.DataFolder == "" {
		return errors.New("paths.data_folder must be set")
	}
	if s.Samples.Workers < 1 {
		s.Samples.Workers = 1
	}
	if _, err := regexp.Compile(s.Samples.BarcodePattern); err != nil {
		return fmt.Errorf("invalid samples.barcode_pattern %q: %w", s.Samples.BarcodePattern, err)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", s.Server.Port)
	}
	return nil
}
