package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiengineer/rageval/internal/chapters"
	"github.com/aiengineer/rageval/internal/config"
	"github.com/aiengineer/rageval/internal/evaluation"
	apperrors "github.com/aiengineer/rageval/internal/pkg/errors"
	"github.com/aiengineer/rageval/internal/pkg/logger"
	"github.com/aiengineer/rageval/internal/server"
)

// loadConfig loads the config named by --config and builds a logger from it.
// --verbose forces debug level.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return cfg, logger.New(level, cfg.Log.Format), nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json":
		return format, nil
	default:
		return "", apperrors.ValidationError(fmt.Sprintf("invalid format %q (must be text or json)", format))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP server",
		Long: `Start the HTTP service:
- /health and /echo
- /v1/evaluation/* metric and judgment endpoints
- /metrics (Prometheus)

The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				appCfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("host") {
				appCfg.Host, _ = cmd.Flags().GetString("host")
			}
			if err := appCfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, server.FromAppConfig(appCfg), appCfg, log)
			if err != nil {
				return err
			}

			log.Info("Starting rageval server",
				"version", appCfg.Version,
				"judgments", appCfg.Judgments.Type,
				"bus", appCfg.Bus.Type,
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")

	return cmd
}

// PRF1Output is the prf1 command's JSON output.
type PRF1Output struct {
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

func prf1Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prf1 TP FP FN",
		Short: "Compute precision, recall and F1 from confusion counts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			counts := make([]int, 3)
			for i, name := range []string{"TP", "FP", "FN"} {
				n, err := strconv.Atoi(args[i])
				if err != nil || n < 0 {
					return apperrors.ValidationError(fmt.Sprintf("%s must be a non-negative integer, got %q", name, args[i]))
				}
				counts[i] = n
			}

			p, r, f1 := evaluation.PrecisionRecallF1(counts[0], counts[1], counts[2])
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, PRF1Output{
					TP: counts[0], FP: counts[1], FN: counts[2],
					Precision: p, Recall: r, F1: f1,
				})
			}
			fmt.Fprintf(out, "precision=%.4f recall=%.4f f1=%.4f\n", p, r, f1)
			return nil
		},
	}
}

// EvalOutput is the eval command's JSON output.
type EvalOutput struct {
	Dataset   string                `json:"dataset"`
	K         int                   `json:"k"`
	RecallAtK float64               `json:"recall_at_k"`
	Report    *evaluation.RunReport `json:"report"`
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval DATASET",
		Short: "Score a YAML or JSON evaluation dataset",
		Long: `Score every query of a dataset file and print the summary.

The dataset lists, per query, the relevant document IDs and the ranked IDs
returned by the retrieval pipeline under test. --k overrides the dataset's
cutoff and restricts scoring to that single k.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			appCfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ds, err := evaluation.LoadDataset(args[0], appCfg.Eval.DefaultK)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("k") {
				k, _ := cmd.Flags().GetInt("k")
				if k < 1 {
					return apperrors.ValidationError(fmt.Sprintf("--k must be positive, got %d", k))
				}
				ds.K = k
				ds.Ks = nil
			}

			result, err := evaluateDataset(cmd.Context(), ds, appCfg, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, result)
			}
			printEvalText(out, result)
			return nil
		},
	}

	cmd.Flags().Int("k", 0, "cutoff (overrides the dataset k and eval.default_k)")

	return cmd
}

// evaluateDataset scores the dataset's run. Ground truth travels inline, so
// no judgments store is needed. Recall@K over the batch is reported
// alongside the summary.
func evaluateDataset(ctx context.Context, ds *evaluation.Dataset, appCfg *config.Config, log *logger.Logger) (*EvalOutput, error) {
	evaluator := evaluation.NewEvaluator(nil, nil, nil, log, evaluation.Config{
		Ks:       appCfg.Eval.Ks,
		DefaultK: appCfg.Eval.DefaultK,
	})
	report, err := evaluator.EvaluateRun(ctx, ds.Run())
	if err != nil {
		return nil, err
	}

	gts, ranked := ds.Batch()
	recall, err := evaluation.BatchRecallAtK(gts, ranked, ds.K)
	if err != nil {
		return nil, err
	}

	return &EvalOutput{Dataset: ds.Name, K: ds.K, RecallAtK: recall, Report: report}, nil
}

func printEvalText(w io.Writer, res *EvalOutput) {
	s := res.Report.Summary
	fmt.Fprintf(w, "dataset: %s (%d queries)\n", res.Dataset, s.QueryCount)
	fmt.Fprintf(w, "recall@%d: %.4f\n", res.K, res.RecallAtK)
	fmt.Fprintf(w, "mrr: %.4f\n", s.MRR)
	fmt.Fprintf(w, "map: %.4f\n", s.MAP)

	ks := make([]int, 0, len(s.MeanRecall))
	for k := range s.MeanRecall {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		fmt.Fprintf(w, "  @%-3d recall=%.4f precision=%.4f ndcg=%.4f\n",
			k, s.MeanRecall[k], s.MeanPrecision[k], s.MeanNDCG[k])
	}
}

func chaptersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "Generate per-week chapter drafts from the course plan",
		Long: `Read the course plan, find rows like "| **Week 3** | **Title** |",
and write week-<n>-chapter.md for each plus an index.md.

With --watch, keep running and regenerate whenever the plan changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			plan := appCfg.Chapters.PlanPath
			if cmd.Flags().Changed("plan") {
				plan, _ = cmd.Flags().GetString("plan")
			}
			out := appCfg.Chapters.OutDir
			if cmd.Flags().Changed("out") {
				out, _ = cmd.Flags().GetString("out")
			}
			watch, _ := cmd.Flags().GetBool("watch")

			gen, err := chapters.NewGenerator(chapters.Config{PlanPath: plan, OutDir: out}, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := gen.Generate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d chapter files in %s\n", n, out)

			if !watch {
				return nil
			}
			if err := gen.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("plan", "", "course plan file (default from config)")
	cmd.Flags().String("out", "", "output directory (default from config)")
	cmd.Flags().Bool("watch", false, "regenerate when the plan changes")

	return cmd
}
