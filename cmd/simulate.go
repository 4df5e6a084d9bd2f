package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/resilience"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/simulation"
)

// scenario is one named simulation in a --file document.
type scenario struct {
	Name                       string `yaml:"name" json:"name"`
	model.SimulationParameters `yaml:",inline" json:"parameters"`
}

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

// scenarioResult is what simulate prints per scenario.
type scenarioResult struct {
	Name       string                      `json:"name"`
	Reconciled *model.ReconciledSimulation `json:"result,omitempty"`
	QuoteError string                      `json:"quote_error,omitempty"`
	QuoteKind  apperr.Kind                 `json:"quote_kind,omitempty"`
	SavedID    string                      `json:"saved_id,omitempty"`
	Schedule   []model.Installment         `json:"schedule,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// runOptions selects what each scenario run does.
type runOptions struct {
	remote      bool
	save        bool
	schedule    bool
	concurrency int
	retry       resilience.RetryConfig
}

var simulateFlags struct {
	file        string
	remote      bool
	retries     int
	backoffMs   int
	save        bool
	schedule    bool
	concurrency int
	birthDate   string
	system      string
	borrower    string
	params      model.SimulationParameters
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulation from flags or a scenario file",
	Long:  "Computes the local PRICE/SAC result and, with --remote, reconciles it against the lending authority's quote. --save persists confirmed results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scenarios, err := loadScenarios()
		if err != nil {
			return err
		}

		mode := "simulate"
		if simulateFlags.save {
			mode = "store"
		}
		env, err := initEnv(ctx, mode, simulateFlags.save)
		if err != nil {
			return err
		}
		defer env.Close()

		retry := resilience.FromRetryConfig(simulateFlags.retries+1, simulateFlags.backoffMs)
		retry.OnRetry = resilience.RetryLogger("simulate")
		retry.ShouldRetry = func(err error) bool {
			return !errors.Is(err, simulation.ErrRemoteDisabled) && apperr.Retryable(err)
		}

		results := runScenarios(ctx, env.Service, scenarios, runOptions{
			remote:      simulateFlags.remote,
			save:        simulateFlags.save,
			schedule:    simulateFlags.schedule,
			concurrency: simulateFlags.concurrency,
			retry:       retry,
		})
		return printResults(cmd.OutOrStdout(), results)
	},
}

func loadScenarios() ([]scenario, error) {
	if simulateFlags.file == "" {
		p := simulateFlags.params
		p.System = model.AmortizationSystem(simulateFlags.system)
		p.BorrowerType = model.BorrowerType(simulateFlags.borrower)
		if simulateFlags.birthDate != "" {
			bd, err := time.Parse("2006-01-02", simulateFlags.birthDate)
			if err != nil {
				return nil, eris.Wrap(err, "simulate: parse --birth-date")
			}
			p.BirthDate = bd
		}
		return []scenario{{Name: "cli", SimulationParameters: p}}, nil
	}

	return loadScenarioFile(simulateFlags.file)
}

// loadScenarioFile reads a YAML document with a top-level scenarios list.
func loadScenarioFile(path string) ([]scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "simulate: read %s", path)
	}
	var doc scenarioFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "simulate: parse %s", path)
	}
	if len(doc.Scenarios) == 0 {
		return nil, eris.Errorf("simulate: %s has no scenarios", path)
	}
	for i := range doc.Scenarios {
		if doc.Scenarios[i].Name == "" {
			doc.Scenarios[i].Name = fmt.Sprintf("scenario-%d", i+1)
		}
	}
	return doc.Scenarios, nil
}

// runScenarios runs every scenario concurrently. Per-scenario failures are
// reported in the result, not returned.
func runScenarios(ctx context.Context, svc *simulation.Service, scenarios []scenario, opts runOptions) []scenarioResult {
	results := make([]scenarioResult, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = runScenario(gctx, svc, sc, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runScenario(ctx context.Context, svc *simulation.Service, sc scenario, opts runOptions) scenarioResult {
	res := scenarioResult{Name: sc.Name}
	log := zap.L().With(zap.String("scenario", sc.Name))

	// Each attempt is a whole new session. Keep the last outcome so a
	// failed quote still reports the local result.
	var last *simulation.Outcome
	var saved *model.SimulationRecord
	_, err := resilience.RetrySession(ctx, opts.retry, func(ctx context.Context) (*simulation.Outcome, error) {
		if opts.save {
			rec, out, err := svc.Save(ctx, sc.SimulationParameters)
			if out != nil {
				last = out
			}
			saved = rec
			if err != nil && out != nil && out.QuoteErr != nil {
				return out, out.QuoteErr
			}
			return out, err
		}
		out, err := svc.Simulate(ctx, sc.SimulationParameters, opts.remote)
		if err != nil {
			return nil, err
		}
		last = out
		return out, out.QuoteErr
	})

	if last == nil {
		res.Error = apperr.Message(err)
		log.Error("simulation failed", zap.Error(err))
		return res
	}
	res.Reconciled = &last.Reconciled
	if last.QuoteErr != nil {
		res.QuoteError = apperr.Message(last.QuoteErr)
		res.QuoteKind = apperr.KindOf(last.QuoteErr)
	}
	if saved != nil {
		res.SavedID = saved.ID
	} else if opts.save && err != nil {
		res.Error = apperr.Message(err)
	}

	if opts.schedule {
		rows, err := svc.Schedule(sc.SimulationParameters)
		if err != nil {
			log.Warn("schedule failed", zap.Error(err))
		}
		res.Schedule = rows
	}

	log.Info("simulation complete",
		zap.String("status", string(last.Reconciled.Status)),
		zap.Float64("initial_installment", last.Reconciled.Local.InitialInstallment),
	)
	return res
}

func printResults(w io.Writer, results []scenarioResult) error {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return eris.Wrap(err, "simulate: encode results")
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateFlags.file, "file", "", "YAML file with a scenarios list")
	f.BoolVar(&simulateFlags.remote, "remote", false, "fetch and reconcile the authoritative quote")
	f.IntVar(&simulateFlags.retries, "retries", 0, "whole-session retries for retryable remote failures")
	f.IntVar(&simulateFlags.backoffMs, "backoff-ms", 2000, "initial retry backoff in milliseconds")
	f.BoolVar(&simulateFlags.save, "save", false, "persist confirmed simulations (implies a remote quote)")
	f.BoolVar(&simulateFlags.schedule, "schedule", false, "include the month-by-month schedule")
	f.IntVar(&simulateFlags.concurrency, "concurrency", 2, "scenarios run in parallel")

	p := &simulateFlags.params
	f.Float64Var(&p.PropertyValue, "property-value", 0, "property value")
	f.Float64Var(&p.DownPayment, "down-payment", 0, "down payment")
	f.Float64Var(&p.FinancedExpenses, "financed-expenses", 0, "expenses added to the financed amount")
	f.Float64Var(&p.Subsidy, "subsidy", 0, "subsidy deducted from the financed amount")
	f.IntVar(&p.TermMonths, "term", 360, "term in months")
	f.Float64Var(&p.MonthlyIncome, "income", 0, "gross monthly income")
	f.StringVar(&simulateFlags.birthDate, "birth-date", "", "borrower birth date (YYYY-MM-DD)")
	f.StringVar(&p.StateCode, "uf", "", "two-letter state code")
	f.IntVar(&p.CityCode, "city", 0, "city code")
	f.StringVar(&simulateFlags.borrower, "borrower", string(model.BorrowerIndividual), "borrower type (F or J)")
	f.StringVar(&p.PropertyType, "property-type", "1", "property type code")
	f.StringVar(&p.FinancingCategory, "category", "1", "financing category code")
	f.StringVar(&simulateFlags.system, "system", string(model.SystemPRICE), "amortization system (PRICE or SAC)")
	f.Float64Var(&p.AnnualContractRate, "rate", 0, "annual contract rate in percent")
	f.Float64Var(&p.AnnualIndexRate, "index-rate", 0, "annual correction index rate in percent")
	f.Float64Var(&p.MonthlyInsurance, "insurance", 0, "monthly insurance")
	f.Float64Var(&p.MonthlyAdminFee, "admin-fee", 0, "monthly administrative fee")
	f.BoolVar(&p.NoDefaults, "no-defaults", false, "keep zero rates and fees instead of the configured defaults")

	rootCmd.AddCommand(simulateCmd)
}
