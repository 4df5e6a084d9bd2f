package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/store"
)

var listFlags struct {
	uf     string
	limit  int
	offset int
}

var simulationsCmd = &cobra.Command{
	Use:   "simulations",
	Short: "Inspect saved simulations",
}

var simulationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved simulations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store", true)
		if err != nil {
			return err
		}
		defer env.Close()

		list, err := env.Service.List(ctx, store.ListFilter{
			StateCode: listFlags.uf,
			Limit:     listFlags.limit,
			Offset:    listFlags.offset,
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, rec := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%+.2f\n",
				rec.ID,
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Parameters.StateCode,
				rec.Parameters.System,
				rec.Quote.Installment,
				rec.Delta,
			)
		}
		return nil
	},
}

var simulationsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Print one saved simulation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store", true)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return eris.Wrap(err, "simulations: encode record")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the simulation store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		// initEnv migrates whenever it opens the store.
		env, err := initEnv(cmd.Context(), "store", true)
		if err != nil {
			return err
		}
		env.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	simulationsListCmd.Flags().StringVar(&listFlags.uf, "uf", "", "filter by state code")
	simulationsListCmd.Flags().IntVar(&listFlags.limit, "limit", 50, "max records")
	simulationsListCmd.Flags().IntVar(&listFlags.offset, "offset", 0, "records to skip")

	simulationsCmd.AddCommand(simulationsListCmd, simulationsGetCmd)
	rootCmd.AddCommand(simulationsCmd, migrateCmd)
}
