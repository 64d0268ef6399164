package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gopower/adapters/excel"
	"gopower/adapters/rng"
	"gopower/adapters/stats/boundary"
	"gopower/adapters/stats/logit"
	"gopower/app"
	"gopower/domain/power"
	"gopower/domain/run"
	"gopower/domain/trial"
	"gopower/internal"
	"gopower/internal/config"
	"gopower/ports"
)

func main() {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "gopower",
		Short: "Monte Carlo power estimation for two-arm binary-outcome experiments",
	}

	rootCmd.AddCommand(
		newPowerCmd(),
		newSequentialCmd(),
		newBoundaryCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildService wires the default adapters behind the power service.
func buildService() (*app.PowerService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := internal.DefaultLogger

	designers := map[ports.SpendingFamily]ports.BoundaryDesigner{
		ports.SpendingOBrienFleming: boundary.NewOBrienFleming(),
		ports.SpendingPocock:        boundary.NewPocock(),
	}
	return app.NewPowerService(logit.NewAnalyzer(), rng.NewDeterministic(), designers, cfg.Simulation, logger), nil
}

func newPowerCmd() *cobra.Command {
	var props []float64
	var sampleSize, reps, workers int
	var alpha, confLevel float64
	var seed int64
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "power",
		Short: "Estimate fixed-sample power by simulation",
		Long: `Estimate the power of a two-arm (or multi-arm) binary-outcome experiment
by repeated simulation: generate balanced datasets under the given per-arm
proportions, fit a logistic regression to each, and report the fraction of
repetitions reaching significance with an exact binomial interval.

Example: gopower power --props 0.4,0.3 --n 1000 --reps 2000 --alpha 0.05`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := buildService()
			if err != nil {
				return err
			}

			result, err := service.EstimatePower(cmd.Context(), app.PowerRequest{
				Props:      props,
				SampleSize: sampleSize,
				Reps:       reps,
				Alpha:      alpha,
				ConfLevel:  confLevel,
				Seed:       seed,
				Workers:    workers,
			})
			if err != nil {
				return err
			}

			printPowerSummary(result.Manifest, result.Summary, result.RuntimeMs)

			if xlsxPath != "" {
				if err := excel.NewWriter().WritePower(result.Manifest, result.Summary, xlsxPath); err != nil {
					return err
				}
				fmt.Printf("workbook written to %s\n", xlsxPath)
			}
			return nil
		},
	}

	cmd.Flags().Float64SliceVar(&props, "props", []float64{0.4, 0.3}, "Per-arm outcome proportions (control first)")
	cmd.Flags().IntVar(&sampleSize, "n", 1000, "Total sample size")
	addRunFlags(cmd, &reps, &alpha, &confLevel, &seed, &workers)
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Optional path for an xlsx export of the summary")

	return cmd
}

func newSequentialCmd() *cobra.Command {
	var props []float64
	var looks []int
	var family string
	var reps, workers int
	var alpha, confLevel float64
	var seed int64
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "sequential",
		Short: "Estimate group-sequential power with interim stopping",
		Long: `Estimate power under a group-sequential design: each simulated trial is
examined at the given cumulative enrollments with error-spending-adjusted
thresholds, stopping at the first look whose boundary is crossed. Reports
overall power plus the distribution of stopping points with the mean effect
estimate at each stop.

Example: gopower sequential --props 0.3,0.4 --looks 500,750,1000 --family obrien-fleming --reps 2000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := buildService()
			if err != nil {
				return err
			}

			result, err := service.EstimateSequentialPower(cmd.Context(), app.SequentialRequest{
				Props:     props,
				InterimN:  looks,
				Family:    ports.SpendingFamily(family),
				Reps:      reps,
				Alpha:     alpha,
				ConfLevel: confLevel,
				Seed:      seed,
				Workers:   workers,
			})
			if err != nil {
				return err
			}

			printPowerSummary(result.Manifest, result.Summary.Power, result.RuntimeMs)
			printSchedule(result.Schedule)
			printStops(result.Summary.Stops)

			if xlsxPath != "" {
				if err := excel.NewWriter().WriteSequential(result.Manifest, result.Schedule, result.Summary, xlsxPath); err != nil {
					return err
				}
				fmt.Printf("workbook written to %s\n", xlsxPath)
			}
			return nil
		},
	}

	cmd.Flags().Float64SliceVar(&props, "props", []float64{0.3, 0.4}, "Per-arm outcome proportions (control first)")
	cmd.Flags().IntSliceVar(&looks, "looks", []int{500, 750, 1000}, "Cumulative enrollment at each look")
	cmd.Flags().StringVar(&family, "family", string(ports.SpendingOBrienFleming), "Spending family: obrien-fleming or pocock")
	addRunFlags(cmd, &reps, &alpha, &confLevel, &seed, &workers)
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Optional path for an xlsx export of the summary")

	return cmd
}

func newBoundaryCmd() *cobra.Command {
	var looks []int
	var family string
	var alpha float64

	cmd := &cobra.Command{
		Use:   "boundary",
		Short: "Print the per-look thresholds for a spending family",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := buildService()
			if err != nil {
				return err
			}
			schedule, err := service.DesignBoundary(cmd.Context(), looks, alpha, ports.SpendingFamily(family))
			if err != nil {
				return err
			}
			printSchedule(schedule)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&looks, "looks", []int{500, 750, 1000}, "Cumulative enrollment at each look")
	cmd.Flags().StringVar(&family, "family", string(ports.SpendingOBrienFleming), "Spending family: obrien-fleming or pocock")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Family-wise two-sided alpha")

	return cmd
}

func addRunFlags(cmd *cobra.Command, reps *int, alpha, confLevel *float64, seed *int64, workers *int) {
	cmd.Flags().IntVar(reps, "reps", 0, "Repetitions (0 = configured default)")
	cmd.Flags().Float64Var(alpha, "alpha", 0, "Significance level (0 = configured default)")
	cmd.Flags().Float64Var(confLevel, "conf-level", 0, "Confidence level for intervals (0 = configured default)")
	cmd.Flags().Int64Var(seed, "seed", 0, "Base random seed (0 = configured default)")
	cmd.Flags().IntVar(workers, "workers", 0, "Parallel workers (0 = GOMAXPROCS)")
}

func printPowerSummary(manifest run.Manifest, summary power.PowerSummary, runtimeMs int64) {
	fmt.Printf("run %s (seed %d)\n", manifest.RunID, manifest.BaseSeed)
	fmt.Printf("power: %.4f  [%.4f, %.4f] at %.0f%% confidence\n",
		summary.Power, summary.CI.Lower, summary.CI.Upper, summary.CI.Level*100)
	fmt.Printf("significant: %d/%d repetitions at alpha=%v (%.1fs)\n",
		summary.Significant, summary.Repetitions, summary.Alpha, float64(runtimeMs)/1000)
	if summary.FitFailures > 0 {
		fmt.Printf("fit failures: %d (%.2f%%)\n", summary.FitFailures, summary.FitFailureRate*100)
	}
	if summary.AllFitsFailed {
		fmt.Println("WARNING: every repetition failed to fit; the estimate is not a power")
	}
}

func printSchedule(schedule trial.LookSchedule) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "look\tcumulative_n\tthreshold")
	for j, look := range schedule {
		fmt.Fprintf(tw, "%d\t%d\t%.6f\n", j+1, look.CumulativeN, look.Threshold)
	}
	tw.Flush()
}

func printStops(stops power.StopDistribution) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "look\tstate\ttrials\tproportion\tci\tmean_estimate")
	for _, g := range stops.Groups {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.4f\t[%.4f, %.4f]\t%.4f\n",
			g.Look, g.State, g.Trials, g.Proportion, g.CI.Lower, g.CI.Upper, g.MeanEstimate)
	}
	tw.Flush()
}
