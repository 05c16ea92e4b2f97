package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/Iron-Ham/brainnet/internal/cmd/config"
	"github.com/Iron-Ham/brainnet/internal/config"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "brainnet",
	Short: "Three-node brain-to-brain block game experiment",
	Long: `brainnet runs a block game trial across one coordinator and two peers.

Each peer classifies its own biosignal and reports whether the falling piece
should be turned. The coordinator relays both decisions through a covert
stimulation channel, classifies its own signal and updates the shared board.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. A failure is printed as one line naming
// the failed precondition.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "brainnet: %s\n", apperrors.Describe(err))
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/brainnet/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(peerCmd)
	rootCmd.AddCommand(conditionsCmd)
	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BRAINNET")
	// e.g., BRAINNET_ACTUATION_HIGH_INTENSITY for actuation.high_intensity
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
