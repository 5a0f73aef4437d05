package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample MediaVault configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/mediavault/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  mediavault init

  # Initialize with custom path
  mediavault init --config /etc/mediavault/config.yaml

  # Force overwrite existing config
  mediavault init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Fill in the bucket name and store credentials")
	fmt.Println("  2. Preview a run with: mediavault cleanup --dry-run")
	fmt.Printf("  3. Or start the service: mediavault start --config %s\n", configPath)

	return nil
}
