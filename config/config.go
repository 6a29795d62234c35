// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/common/model"
	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Browse   BrowseConfig   `mapstructure:"browse"`
	HTTP     ServerConfig   `mapstructure:"http"`
	Health   ServerConfig   `mapstructure:"health"`
}

// ProviderConfig names the history provider. The sink shares the name.
type ProviderConfig struct {
	Name string `mapstructure:"name"`
}

// ClusterConfig locates and authenticates against the cluster. Endpoint is
// either a bare cluster name or a full URL. When ApplicationID is empty the
// default Azure credential chain is used.
type ClusterConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	ApplicationID     string `mapstructure:"applicationid"`
	ApplicationSecret string `mapstructure:"applicationsecret"`
	TenantID          string `mapstructure:"tenantid"`
}

type DatabaseConfig struct {
	Name        string `mapstructure:"name"`
	EventsTable string `mapstructure:"eventstable"`
}

// IngestConfig selects the ingestion transport.
type IngestConfig struct {
	Streaming   bool   `mapstructure:"streaming"`
	ResourceTTL string `mapstructure:"resourcettl"`

	ResourceTTLDuration time.Duration `mapstructure:"-"`
}

// BrowseConfig bounds browse queries to recent rows. Lookback accepts
// Prometheus-style durations such as "5d" or "12h"; "0" disables the bound.
type BrowseConfig struct {
	Lookback string `mapstructure:"lookback"`

	LookbackDuration time.Duration `mapstructure:"-"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{Name: "ADX"},
		Database: DatabaseConfig{EventsTable: "Events"},
		Ingest:   IngestConfig{ResourceTTL: "1h"},
		Browse:   BrowseConfig{Lookback: "5d"},
		HTTP:     ServerConfig{Port: 8080},
		Health:   ServerConfig{Port: 8090},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "ADXHISTORIAN" and the dot character
// in keys is replaced by an underscore. For example, "cluster.endpoint"
// becomes "ADXHISTORIAN_CLUSTER_ENDPOINT".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("ADXHISTORIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseDurations() error {
	var err error
	if c.Browse.LookbackDuration, err = parseDuration(c.Browse.Lookback); err != nil {
		return fmt.Errorf("browse.lookback: %w", err)
	}
	if c.Ingest.ResourceTTLDuration, err = parseDuration(c.Ingest.ResourceTTL); err != nil {
		return fmt.Errorf("ingest.resourcettl: %w", err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(d), nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if strings.TrimSpace(c.Cluster.Endpoint) == "" {
		errs = multierror.Append(errs, errors.New("cluster.endpoint is required"))
	}
	if strings.TrimSpace(c.Database.Name) == "" {
		errs = multierror.Append(errs, errors.New("database.name is required"))
	}
	if strings.TrimSpace(c.Database.EventsTable) == "" {
		errs = multierror.Append(errs, errors.New("database.eventstable is required"))
	}
	if c.Cluster.ApplicationID != "" {
		if c.Cluster.ApplicationSecret == "" {
			errs = multierror.Append(errs, errors.New("cluster.applicationsecret is required with cluster.applicationid"))
		}
		if c.Cluster.TenantID == "" {
			errs = multierror.Append(errs, errors.New("cluster.tenantid is required with cluster.applicationid"))
		}
	}
	return errs.ErrorOrNil()
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
