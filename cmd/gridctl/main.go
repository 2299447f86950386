package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/gridledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL     string
	cfgFile     string
	bearerToken string
	timeout     time.Duration
	outputJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gridctl",
	Short: "gridledger node CLI",
	Long: `gridctl talks to a gridledger node over HTTP.

It submits transactions, triggers mining, inspects the chain and peers,
mints operator tokens and drives the energy-market simulation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.gridctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("gridctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8000"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.gridctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "node base URL (default http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "operator bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP timeout per request")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON instead of tables")

	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(consensusCmd)
	rootCmd.AddCommand(peersCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client from the persistent flags.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(timeout)}
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(nodeURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gridctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gridctl %s (gridledger)\n", version)
	},
}
