package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/distribution/reference"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/goroutinelimits"
	"github.com/kubescape/dockwatch/internal/tools"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddress      string        `mapstructure:"listenAddress"`
	DaemonHost         string        `mapstructure:"daemonHost"`
	WorkerCount        int           `mapstructure:"workerCount"`
	MaxConcurrentPulls int           `mapstructure:"maxConcurrentPulls"`
	ReconnectAttempts  int           `mapstructure:"reconnectAttempts"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnectBackoff"`
	Images             []Image       `mapstructure:"images"`
}

// Image declares one managed image. Environment entries are KEY=VALUE pairs
// because map keys are case-folded when read.
type Image struct {
	ID          string            `mapstructure:"id"`
	Path        string            `mapstructure:"path"`
	Label       string            `mapstructure:"label"`
	Ports       []string          `mapstructure:"ports"`
	Volumes     []string          `mapstructure:"volumes"`
	Environment []string          `mapstructure:"environment"`
	NetworkMode string            `mapstructure:"networkMode"`
	Hosts       map[string]string `mapstructure:"hosts"`
}

// Dir is where the configuration is read from, CONFIG_DIR or the user's
// XDG configuration directory.
func Dir() string {
	if dir, ok := os.LookupEnv("CONFIG_DIR"); ok {
		return dir
	}
	return filepath.Join(xdg.ConfigHome, "dockwatch")
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("listenAddress", ":8080")
	viper.SetDefault("daemonHost", "")
	viper.SetDefault("workerCount", 4)
	viper.SetDefault("maxConcurrentPulls", goroutinelimits.DefaultMaxConcurrentPulls)
	viper.SetDefault("reconnectAttempts", 5)
	viper.SetDefault("reconnectBackoff", time.Second)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// Catalog validates the declared images and builds the catalog from them.
func (c Config) Catalog() (domain.Catalog, error) {
	images := make([]domain.ManagedImage, 0, len(c.Images))
	for _, image := range c.Images {
		named, err := reference.ParseNormalizedNamed(image.Path)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("image %q: %w: %w", image.ID, domain.ErrInvalidImage, err)
		}
		for hostname := range image.Hosts {
			if err := tools.ValidateHostname(hostname); err != nil {
				return domain.Catalog{}, fmt.Errorf("image %q: host %q: %w: %w", image.ID, hostname, domain.ErrInvalidImage, err)
			}
		}
		env := make(map[string]string, len(image.Environment))
		for _, entry := range image.Environment {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || key == "" {
				return domain.Catalog{}, fmt.Errorf("image %q: environment %q is not KEY=VALUE: %w", image.ID, entry, domain.ErrInvalidImage)
			}
			env[key] = value
		}
		images = append(images, domain.ManagedImage{
			ID:          image.ID,
			Path:        reference.FamiliarString(reference.TagNameOnly(named)),
			Label:       image.Label,
			Ports:       image.Ports,
			Volumes:     image.Volumes,
			Environment: env,
			NetworkMode: image.NetworkMode,
			Hosts:       image.Hosts,
		})
	}
	return domain.NewCatalog(images...)
}
