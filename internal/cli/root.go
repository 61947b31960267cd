package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeJamon/xrpl-interceptor/internal/config"
)

var (
	// Global flags
	configFile     string
	debug          bool
	controllerAddr string
	topologyFile   string
	statusAddr     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xrpl-interceptor",
	Short: "Man-in-the-middle proxy for XRPL validator peer links",
	Long: `xrpl-interceptor stands between the validators of a test network. It
connects to every node, presents itself as each node's peers and relays the
peer protocol traffic of every pair of nodes, asking an external controller
whether to forward, mutate or drop each message and injecting configured
network faults.`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (default ./xrpl-interceptor.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().StringVar(&controllerAddr, "controller", "", "controller gRPC address, overrides controller.address")
	rootCmd.PersistentFlags().StringVar(&topologyFile, "topology", "", "YAML topology file, overrides topology.file")
	rootCmd.PersistentFlags().StringVar(&statusAddr, "status", "", "status server address, overrides status.address")
}

// flagKeys maps persistent flags to the configuration keys they override.
var flagKeys = map[string]string{
	"controller": "controller.address",
	"topology":   "topology.file",
	"status":     "status.address",
}

// loadConfig loads the configuration with the command line flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
