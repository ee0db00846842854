package templates

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `
# cattleid configuration
environment: dev
host: localhost
port: 8881
models_dir: ~/.cattleid/models
public_dir: ""
max_upload_mb: 10
inference_workers: 1
default_model: a

models:
  a:
    name: MobileNetV2
    encoding: normalized_rgb
    dir: modelA
  b:
    name: ResNet50
    encoding: mean_centered_bgr
    dir: modelB

labels:
  source: class_names.json
  timeout_seconds: 10

camera:
  url: ""
  timeout_seconds: 10
`

const envTemplate = `# Environment overrides for cattleid. Every key in config.yaml can be set
# here with the CATTLEID_ prefix, e.g. CATTLEID_PORT=9000
# CATTLEID_ONNXRUNTIME_LIB=/usr/local/lib/libonnxruntime.so
# CATTLEID_CAMERA_URL=http://192.168.1.20/mjpeg
# AWS_ACCESS_KEY_ID=
# AWS_SECRET_ACCESS_KEY=
# HF_TOKEN=
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	return writeTemplate(path, GetConfigTemplate())
}

func WriteEnv(path string) error {
	return writeTemplate(path, GetEnvTemplate())
}

// CreateHomeDirs creates the home directory and the subdirectories the
// service expects to find in it.
func CreateHomeDirs(home string, subdirs ...string) error {
	if err := os.MkdirAll(home, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	for _, subdir := range subdirs {
		dir := filepath.Join(home, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}

func writeTemplate(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	return err
}
