package config

import (
	"errors"

	"github.com/spf13/viper"
)

const (
	DefaultHome         = "~/.cattleid"
	DefaultPort         = 8881
	DefaultHost         = "localhost"
	DefaultEnvironment  = "dev"
	DefaultMaxUploadMB  = 10
	DefaultLabelsSource = "class_names.json"
	DefaultModel        = "a"
)

const (
	EnvironmentDev  = "dev"
	EnvironmentProd = "prod"
	EnvironmentTest = "test"
)

var (
	ErrHomeNotSet       = errors.New("cattleid home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand cattleid home directory")
	ErrNoModels         = errors.New("no models configured")
	ErrConfigNotLoaded  = errors.New("config not loaded")
)

// Models are not viper defaults: viper merges nested maps key by key, which
// would leak the default bundles into a config that names its own.
func defaultModels() map[string]*ModelConfig {
	return map[string]*ModelConfig{
		"a": {Name: "MobileNetV2", Encoding: "normalized_rgb", Dir: "modelA"},
		"b": {Name: "ResNet50", Encoding: "mean_centered_bgr", Dir: "modelB"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("environment", DefaultEnvironment)
	v.SetDefault("max_upload_mb", DefaultMaxUploadMB)
	v.SetDefault("inference_workers", 1)
	v.SetDefault("default_model", DefaultModel)

	v.SetDefault("labels.source", DefaultLabelsSource)
	v.SetDefault("labels.timeout_seconds", 10)
	v.SetDefault("camera.timeout_seconds", 10)
	v.SetDefault("s3.region_name", "us-east-1")
}
