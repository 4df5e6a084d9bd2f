package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
)

// cityLister is the part of the service the cities command needs.
type cityLister interface {
	Cities(ctx context.Context, regionCode string) ([]model.CityOption, error)
}

// warmConcurrency bounds parallel region lookups. The remote limiter still
// applies underneath.
const warmConcurrency = 3

var citiesCmd = &cobra.Command{
	Use:   "cities UF [UF...]",
	Short: "List the cities of one or more states",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cities", false)
		if err != nil {
			return err
		}
		defer env.Close()

		found, err := warmCities(ctx, env.Service, args)
		w := cmd.OutOrStdout()
		for _, uf := range args {
			key := strings.ToUpper(uf)
			list, ok := found[key]
			if !ok {
				continue
			}
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\n", key, c.Code, c.Name)
			}
		}
		return err
	},
}

// warmCities looks up every region concurrently, filling the city cache. It
// returns the lists it got and the first error.
func warmCities(ctx context.Context, svc cityLister, regions []string) (map[string][]model.CityOption, error) {
	var (
		mu    sync.Mutex
		found = make(map[string][]model.CityOption, len(regions))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, uf := range regions {
		g.Go(func() error {
			list, err := svc.Cities(gctx, uf)
			if err != nil {
				return eris.Wrapf(err, "cities: %s", uf)
			}
			mu.Lock()
			found[strings.ToUpper(uf)] = list
			mu.Unlock()
			zap.L().Info("cities loaded", zap.String("uf", uf), zap.Int("count", len(list)))
			return nil
		})
	}
	err := g.Wait()
	return found, err
}

func init() {
	rootCmd.AddCommand(citiesCmd)
}
