package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/cattleid/internal/templates"
	"github.com/cozy-creator/cattleid/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CATTLEID"

type Config struct {
	Port             int                     `mapstructure:"port"`
	Host             string                  `mapstructure:"host"`
	Environment      string                  `mapstructure:"environment"`
	Home             string                  `mapstructure:"home"`
	ModelsDir        string                  `mapstructure:"models_dir"`
	PublicDir        string                  `mapstructure:"public_dir"`
	MaxUploadMB      int                     `mapstructure:"max_upload_mb"`
	InferenceWorkers int                     `mapstructure:"inference_workers"`
	OnnxRuntimeLib   string                  `mapstructure:"onnxruntime_lib"`
	DisableAuth      bool                    `mapstructure:"disable_auth"`
	APIKeyHashes     []string                `mapstructure:"api_key_hashes"`
	DefaultModel     string                  `mapstructure:"default_model"`
	Models           map[string]*ModelConfig `mapstructure:"models"`
	Labels           *LabelsConfig           `mapstructure:"labels"`
	Camera           *CameraConfig           `mapstructure:"camera"`
	S3               *S3Config               `mapstructure:"s3"`
}

// ModelConfig describes one classifier bundle. Dir is relative to ModelsDir
// unless absolute; Source is only used by the fetch command.
type ModelConfig struct {
	Name     string `mapstructure:"name"`
	Encoding string `mapstructure:"encoding"`
	Dir      string `mapstructure:"dir"`
	Source   string `mapstructure:"source"`
}

type LabelsConfig struct {
	Source         string `mapstructure:"source"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type CameraConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type S3Config struct {
	Region      string `mapstructure:"region_name"`
	EndpointUrl string `mapstructure:"endpoint_url"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
}

var config *Config

// InitConfig resolves the home directory, writes the default .env and
// config.yaml into it when they are missing, and loads the result into the
// global viper instance.
func InitConfig() error {
	v := viper.GetViper()

	home, err := getHome(v)
	if err != nil {
		return err
	}
	v.Set("home", home)

	if err := templates.CreateHomeDirs(home, "models"); err != nil {
		return err
	}

	envFile := v.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(home, ".env")
	}

	configFile := v.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(home, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	v.AutomaticEnv()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg, err := Load(v)
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Load unmarshals v into a Config, resolving relative paths against the
// home directory and validating the result.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.InferenceWorkers < 1 {
		return fmt.Errorf("inference_workers must be at least 1, got %d", c.InferenceWorkers)
	}

	if c.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", c.MaxUploadMB)
	}

	if len(c.Models) == 0 {
		return ErrNoModels
	}

	for id, model := range c.Models {
		if model == nil || (model.Dir == "" && model.Source == "") {
			return fmt.Errorf("model %q needs a dir or a source", id)
		}
	}

	if _, ok := c.Models[c.DefaultModel]; !ok {
		return fmt.Errorf("default model %q is not configured", c.DefaultModel)
	}

	return nil
}

// ModelDir returns the absolute bundle directory for a model.
func (c *Config) ModelDir(id string) string {
	model, ok := c.Models[NormalizeModelID(id)]
	if !ok {
		return ""
	}

	dir := model.Dir
	if dir == "" {
		dir = NormalizeModelID(id)
	}

	if filepath.IsAbs(dir) {
		return dir
	}

	return filepath.Join(c.ModelsDir, dir)
}

func (c *Config) LabelsTimeout() time.Duration {
	if c.Labels == nil || c.Labels.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}

	return time.Duration(c.Labels.TimeoutSeconds) * time.Second
}

func (c *Config) CameraTimeout() time.Duration {
	if c.Camera == nil || c.Camera.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}

	return time.Duration(c.Camera.TimeoutSeconds) * time.Second
}

// NormalizeModelID lower-cases model IDs; viper lower-cases map keys, so
// "A" and "a" must refer to the same model.
func NormalizeModelID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (c *Config) resolvePaths() error {
	home, err := pathutil.ExpandPath(c.Home)
	if err != nil {
		return ErrHomeExpandFailed
	}
	c.Home = home

	if c.ModelsDir == "" {
		if c.Home == "" {
			return ErrHomeNotSet
		}
		c.ModelsDir = filepath.Join(c.Home, "models")
	}

	if c.ModelsDir, err = pathutil.ResolvePath(c.Home, c.ModelsDir); err != nil {
		return fmt.Errorf("failed to expand models dir: %w", err)
	}

	if c.PublicDir, err = pathutil.ResolvePath("", c.PublicDir); err != nil {
		return fmt.Errorf("failed to expand public dir: %w", err)
	}

	if len(c.Models) == 0 {
		c.Models = defaultModels()
	}

	normalized := make(map[string]*ModelConfig, len(c.Models))
	for id, model := range c.Models {
		normalized[NormalizeModelID(id)] = model
	}
	c.Models = normalized
	c.DefaultModel = NormalizeModelID(c.DefaultModel)

	if c.Labels == nil {
		c.Labels = &LabelsConfig{Source: DefaultLabelsSource}
	}

	// Label sources are either URLs or paths relative to the models dir.
	source := c.Labels.Source
	if source != "" && !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		if c.Labels.Source, err = pathutil.ResolvePath(c.ModelsDir, source); err != nil {
			return fmt.Errorf("failed to expand labels source: %w", err)
		}
	}

	if c.Camera == nil {
		c.Camera = &CameraConfig{}
	}

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func MustGetConfig() *Config {
	return GetConfig()
}

// SetConfig replaces the global config; used by commands that build a
// config without reading files.
func SetConfig(cfg *Config) {
	config = cfg
}

// Returns the home directory path.
// It attempts to retrieve the home directory from the following sources in order:
// 1. The `home` flag from viper.
// 2. The `CATTLEID_HOME` environment variable.
// 3. The default home directory.
func getHome(v *viper.Viper) (string, error) {
	home := v.GetString("home")
	if home == "" {
		home = os.Getenv(envPrefix + "_HOME")
		if home == "" {
			home = DefaultHome
		}
	}

	home, err := pathutil.ExpandPath(home)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	if home == "" {
		return "", ErrHomeNotSet
	}

	return home, nil
}
