package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/sftpws/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a sample sftpwsd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/sftpws/sftpws.yaml. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  sftpwsd init

  # Initialize with custom path
  sftpwsd init --config /etc/sftpws/sftpws.yaml

  # Force overwrite an existing config
  sftpwsd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to set server.virtual_root and server.listen_addr")
	fmt.Println("  2. Start the server with: sftpwsd start")
	fmt.Printf("  3. Or specify a custom config: sftpwsd start --config %s\n", configPath)
	return nil
}
