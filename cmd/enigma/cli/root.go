package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/npnl/enigma-request/internal/client"
	"github.com/npnl/enigma-request/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "enigma",
	Short: "Query and submit ENIGMA Stroke Recovery data requests",
	Long:  longDescription,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

var (
	cfgFile   string
	serverURL string
	token     string

	cfg *config.Config
)

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetRootCmd returns the root command for use with fang
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "request server base URL (overrides client.base_url)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (overrides client.token)")

	rootCmd.AddCommand(estimateCmd, restoreCmd, rowsCountCmd, requestsCmd, tokenCmd, loginCmd)
}

func initConfig() {
	c, err := config.Load(".", cfgFile)
	cobra.CheckErr(err)
	cfg = c
	if f := cfg.File(); f != "" {
		fmt.Fprintln(os.Stderr, dimStyle.Render("Using config file: ")+sectionStyle.Render(f))
	}
}

// apiClient builds a client from config with flag overrides applied.
func apiClient() *client.Client {
	base, tok := cfg.Client.BaseURL, cfg.Client.Token
	if strings.TrimSpace(serverURL) != "" {
		base = serverURL
	}
	if strings.TrimSpace(token) != "" {
		tok = token
	}
	return client.New(base, cfg.Client.Timeout, client.StaticToken(tok))
}

const longDescription = "Command line companion for the ENIGMA data request server. Estimates matching rows for a metric selection, inspects saved request state files and submits or reviews requests."
