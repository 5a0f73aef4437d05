package config

import (
	"fmt"
	"os"
)

// InitConfig writes a starter configuration file at the default location.
// Returns the path written. Refuses to overwrite an existing file unless
// force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a starter configuration file at path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := GetDefaultConfig()
	// Placeholders the operator has to fill in before the first run.
	cfg.Blob.Bucket = "media-content"
	cfg.Blob.Endpoint = "http://localhost:9000"
	cfg.Blob.AccessKeyID = "CHANGE_ME"
	cfg.Blob.SecretAccessKey = "CHANGE_ME"
	cfg.Blob.ForcePathStyle = true

	return SaveConfig(cfg, path)
}
