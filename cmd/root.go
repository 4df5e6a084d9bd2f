package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/config"
)

var (
	cfg     *config.Config
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "quote-cli",
	Short: "Housing-loan quote proxy and reconciliation engine",
	Long: `Computes PRICE and SAC installment schedules locally, fetches the lending
authority's own quote, reconciles the two and stores confirmed simulations.

Settings come from ./config.yaml (or --config) and QUOTE_* environment
variables, e.g. QUOTE_STORE_DRIVER=postgres.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "quote-cli: init logger")
		}
		cfg = c

		zap.L().Debug("quote-cli: config loaded",
			zap.String("command", cmd.Name()),
			zap.String("store", c.Store.Driver),
			zap.Bool("remote_disabled", c.Remote.Disabled),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Error("quote-cli: command failed", zap.Error(err))
		os.Exit(1)
	}
}
