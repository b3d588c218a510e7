package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jcdickinson/ferrisfind/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Long: `Print the configuration after merging defaults, the config file, and
FERRISFIND_* environment variables. The output is a valid config.toml.`,
	Run: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# from %s\n", used)
	}
	fmt.Printf("# cache: %s\n# socket: %s\n\n", config.CASDir(), config.SocketPath())

	enc := toml.NewEncoder(os.Stdout)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		log.Fatalf("encoding config: %v", err)
	}
}
