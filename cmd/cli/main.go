package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gouncertain/adapters/excel"
	"gouncertain/adapters/network"
	"gouncertain/adapters/rng"
	"gouncertain/app"
	"gouncertain/domain/mask"
	"gouncertain/internal/benchmark"
	"gouncertain/internal/config"
	"gouncertain/internal/estimator"
	"gouncertain/internal/profiling"
	"gouncertain/internal/testkit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	service := app.NewEstimationService(rng.NewStreams(), nil, cfg.Benchmark.MaxConcurrency)

	rootCmd := &cobra.Command{
		Use:   "gouncertain",
		Short: "Monte-Carlo dropout uncertainty estimation",
	}

	rootCmd.AddCommand(
		newEstimateCmd(cfg, service),
		newCompareCmd(cfg, service),
		newStrategiesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// knobFlags binds the estimation knobs shared by estimate and compare
type knobFlags struct {
	estimator string
	runs      int
	rate      float64
	diagEps   float64
	seed      uint64
}

func (k *knobFlags) bind(cmd *cobra.Command, d config.EstimationConfig) {
	cmd.Flags().StringVar(&k.estimator, "estimator", string(d.Estimator), "Estimator: mcdue|nngp")
	cmd.Flags().IntVar(&k.runs, "runs", d.NNRuns, "Number of stochastic forward passes")
	cmd.Flags().Float64Var(&k.rate, "rate", d.DropoutRate, "Dropout rate in [0, 1)")
	cmd.Flags().Float64Var(&k.diagEps, "diag-eps", d.DiagEps, "Diagonal regularization for the NNGP train covariance")
	cmd.Flags().Uint64Var(&k.seed, "seed", d.Seed, "Random seed for deterministic operations")
}

func (k *knobFlags) config(d config.EstimationConfig) (estimator.Config, error) {
	kind, err := estimator.ParseKind(k.estimator)
	if err != nil {
		return estimator.Config{}, err
	}
	if err := mask.ValidateRate(k.rate); err != nil {
		return estimator.Config{}, err
	}
	if k.runs <= 0 {
		return estimator.Config{}, fmt.Errorf("--runs must be positive, got %d", k.runs)
	}
	return estimator.Config{
		Kind:        kind,
		NNRuns:      k.runs,
		DropoutRate: k.rate,
		DiagEps:     k.diagEps,
		Diagnostics: d.Diagnostics,
	}, nil
}

func newEstimateCmd(cfg *config.Config, service *app.EstimationService) *cobra.Command {
	var knobs knobFlags
	var poolPath, trainPath, labelsColumn, layers, strategy, out string
	var top int

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Score a pool of samples with an uncertainty estimator",
		Long: `Score every pool row with MCDUE or the NNGP posterior-variance estimator,
using a seeded reference network with the given layer sizes.

Example: gouncertain estimate --pool pool.xlsx --train train.xlsx --layers 8,64,64,1 --strategy adpp --estimator nngp --out report.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, err := knobs.config(cfg.Estimation)
			if err != nil {
				return err
			}
			name, err := mask.ParseName(strategy)
			if err != nil {
				return err
			}
			sizes, err := parseSizes(layers)
			if err != nil {
				return err
			}

			pool, err := readTable(poolPath, labelsColumn)
			if err != nil {
				return fmt.Errorf("reading pool: %w", err)
			}
			req := app.EstimateRequest{
				Pool:      pool.X,
				Strategy:  name,
				Estimator: ec,
				Seed:      knobs.seed,
			}
			if trainPath != "" {
				train, err := readTable(trainPath, labelsColumn)
				if err != nil {
					return fmt.Errorf("reading train set: %w", err)
				}
				req.TrainX, req.TrainY = train.X, train.Y
			}

			if sizes[0] != len(pool.Features) {
				return fmt.Errorf("--layers starts with %d inputs but the pool has %d features", sizes[0], len(pool.Features))
			}
			net, err := network.NewRandomMLP(sizes, rand.New(rand.NewPCG(knobs.seed, 0x6e6574)))
			if err != nil {
				return err
			}
			req.Predictor = net

			res, err := service.Estimate(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("Run: %s\n", res.Manifest.RunID)
			fmt.Printf("Fingerprint: %s\n", res.Manifest.Fingerprint.Short())
			for i, s := range res.Scores {
				fmt.Printf("%d\t%.6f\n", i, s)
			}
			if profile, err := profiling.ProfileScores(res.Scores); err == nil {
				fmt.Printf("Mean: %.6f  Median: %.6f  Max: %.6f  Skewness: %.3f\n", profile.Mean, profile.Median, profile.Max, profile.Skewness)
				fmt.Printf("High uncertainty samples: %v\n", profile.HighUncertainty)
			}
			if top > 0 {
				fmt.Printf("Top %d samples to label: %v\n", top, profiling.TopK(res.Scores, top))
			}
			if out != "" {
				return excel.WriteReport(resolveOut(cfg, out), excel.ScoresSheets(res.Manifest, res.Scores))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&poolPath, "pool", "", "Pool samples (.xlsx Sheet1 or .csv)")
	cmd.Flags().StringVar(&trainPath, "train", "", "Training samples (.xlsx Sheet1 or .csv), required for nngp")
	cmd.Flags().StringVar(&labelsColumn, "labels-column", "y", "Label column, excluded from the features when present")
	cmd.Flags().StringVar(&layers, "layers", "8,64,64,1", "Reference network layer sizes")
	cmd.Flags().StringVar(&strategy, "strategy", string(cfg.Estimation.Strategy), "Mask strategy")
	cmd.Flags().StringVar(&out, "out", "", "Write the scores report to this .xlsx or .csv path")
	cmd.Flags().IntVar(&top, "top", 0, "Also print the indices of the k most uncertain samples")
	knobs.bind(cmd, cfg.Estimation)
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func newCompareCmd(cfg *config.Config, service *app.EstimationService) *cobra.Command {
	var knobs knobFlags
	var dataset, strategies, hidden, out string
	var trainSize, poolSize int

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare mask strategies on a synthetic regression dataset",
		Long: `Score the same synthetic pool once per strategy and summarize each.

Example: gouncertain compare --dataset sine --strategies basic_mask,mirror_random,adpp --runs 25`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec, err := knobs.config(cfg.Estimation)
			if err != nil {
				return err
			}
			names, err := mask.ParseNames(strategies)
			if err != nil {
				return err
			}
			dsName, err := testkit.ParseDataset(dataset)
			if err != nil {
				return err
			}
			dcfg := testkit.DefaultRegressionConfig(dsName)
			dcfg.TrainSize, dcfg.PoolSize, dcfg.Seed = trainSize, poolSize, knobs.seed
			ds, err := testkit.Generate(dcfg)
			if err != nil {
				return err
			}

			hiddenSizes, err := parseSizes(hidden)
			if err != nil {
				return err
			}
			sizes := append(append([]int{ds.Features()}, hiddenSizes...), 1)
			net, err := network.NewRandomMLP(sizes, rand.New(rand.NewPCG(knobs.seed, 0x6e6574)))
			if err != nil {
				return err
			}

			summaries, err := service.Compare(cmd.Context(), benchmark.Request{
				Predictor:   net,
				Pool:        ds.PoolX,
				TrainX:      ds.TrainX,
				TrainY:      ds.TrainY,
				Strategies:  names,
				Estimator:   ec,
				Seed:        knobs.seed,
				PoolY:       ds.PoolY,
				OutOfDomain: ds.OutOfDomain,
			})
			if err != nil {
				return err
			}

			printSummaries(summaries)
			if out != "" {
				return excel.WriteReport(resolveOut(cfg, out), summarySheets(summaries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "sine", "Synthetic dataset: sine|friedman|linear")
	cmd.Flags().StringVar(&strategies, "strategies", "", "Comma separated strategies (default vanilla,mirror_random,decorrelating,decorrelating_sc,adpp)")
	cmd.Flags().StringVar(&hidden, "hidden", "64,64", "Hidden layer sizes of the reference network")
	cmd.Flags().IntVar(&trainSize, "train-size", 200, "Synthetic train samples")
	cmd.Flags().IntVar(&poolSize, "pool-size", 100, "Synthetic pool samples")
	cmd.Flags().StringVar(&out, "out", "", "Write the comparison report to this .xlsx or .csv path")
	knobs.bind(cmd, cfg.Estimation)
	return cmd
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List mask strategies and estimators",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := map[mask.Name]bool{}
			for _, n := range mask.DefaultNames {
				defaults[n] = true
			}
			fmt.Println("Strategies:")
			for _, n := range mask.AllNames {
				marker := ""
				if defaults[n] {
					marker = " (default set)"
				}
				fmt.Printf("  %s%s\n", n, marker)
			}
			fmt.Println("Estimators:")
			for _, k := range estimator.Kinds {
				fmt.Printf("  %s\n", k)
			}
			return nil
		},
	}
}

func readTable(path, labelsColumn string) (*excel.NumericTable, error) {
	table, err := excel.NewDataReader(path).ReadData()
	if err != nil {
		return nil, err
	}
	label := ""
	for _, h := range table.Headers {
		if strings.EqualFold(h, labelsColumn) {
			label = labelsColumn
			break
		}
	}
	return table.Numeric(label)
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid layer size %q in %q", part, s)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// resolveOut places bare file names under the configured report directory
func resolveOut(cfg *config.Config, out string) string {
	if filepath.Base(out) != out {
		return out
	}
	if err := os.MkdirAll(cfg.Paths.ReportDir, 0o755); err != nil {
		return out
	}
	return filepath.Join(cfg.Paths.ReportDir, out)
}

func printSummaries(summaries []benchmark.Summary) {
	fmt.Printf("%-18s %10s %10s %10s %10s %10s %10s\n", "strategy", "mean", "median", "max", "err_corr", "ood_ratio", "elapsed")
	for _, s := range summaries {
		if s.Err != "" {
			fmt.Printf("%-18s failed: %s\n", s.Strategy, s.Err)
			continue
		}
		fmt.Printf("%-18s %10.4f %10.4f %10.4f %10s %10s %10s\n",
			s.Strategy, s.Mean, s.Median, s.Max, optional(s.ErrorCorrelation), optional(s.DomainRatio), s.Elapsed.Round(time.Millisecond))
	}
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func summarySheets(summaries []benchmark.Summary) []excel.Sheet {
	rows := make([][]any, len(summaries))
	for i, s := range summaries {
		rows[i] = []any{string(s.Strategy), s.Mean, s.Median, s.Max, optional(s.ErrorCorrelation), optional(s.DomainRatio), s.Elapsed.Seconds(), s.Err}
	}
	return []excel.Sheet{{
		Name:    "comparison",
		Headers: []string{"strategy", "mean", "median", "max", "error_correlation", "domain_ratio", "elapsed_s", "error"},
		Rows:    rows,
	}}
}
