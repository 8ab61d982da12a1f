package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/ho/v2"
	"github.com/thalesfsp/ho/v2/internal/config"
	"github.com/thalesfsp/ho/v2/internal/logging"
	"github.com/thalesfsp/ho/v2/internal/store"
)

// experimentFile describes a local optimization run.
type experimentFile struct {
	Name         string                  `yaml:"name"`
	Objective    string                  `yaml:"objective"`
	Iterations   int                     `yaml:"iterations"`
	Workers      int                     `yaml:"workers"`
	Maximization bool                    `yaml:"maximization"`
	Parameters   map[string]ho.ParamSpec `yaml:"parameters"`
	Optimizer    *config.Optimizer       `yaml:"optimizer"`
}

func loadExperimentFile(path string) (*experimentFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f experimentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if f.Name == "" {
		f.Name = f.Objective
	}

	if f.Iterations < 1 {
		return nil, fmt.Errorf("%s: iterations must be positive", path)
	}

	f.Workers = max(f.Workers, 1)

	return &f, nil
}

func newRunCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimize a built-in objective locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			exp, err := loadExperimentFile(file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, exp, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "experiment.yaml", "experiment file")

	return cmd
}

// run drives the experiment with exp.Workers concurrent workers until
// exp.Iterations candidates have finished.
func run(ctx context.Context, cfg *config.Config, exp *experimentFile, out io.Writer) error {
	log, flush, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer flush()

	f, err := lookupObjective(exp.Objective)
	if err != nil {
		return err
	}

	space, err := ho.NewParameterSpaceFromSpecs(exp.Parameters)
	if err != nil {
		return err
	}

	optimizer := cfg.Optimizer
	if exp.Optimizer != nil {
		optimizer = *exp.Optimizer
	}

	opts := []ho.AssistantOption{ho.WithAssistantLogger(log)}
	if exp.Maximization {
		opts = append(opts, ho.WithMaximization())
	}

	if cfg.Store.Dir != "" {
		s, err := store.New(cfg.Store.Dir, time.Now())
		if err != nil {
			return err
		}

		opts = append(opts, ho.WithPersister(s, cfg.Store.WriteFrequency))
	}

	assistant, err := ho.NewExperimentAssistant(exp.Name, space, optimizer.OptimizationConfig(), opts...)
	if err != nil {
		return err
	}

	var remaining atomic.Int64
	remaining.Store(int64(exp.Iterations))

	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < exp.Workers; w++ {
		w := w
		g.Go(func() error {
			for remaining.Add(-1) >= 0 {
				c, err := assistant.NextCandidate(gctx)
				if err != nil {
					return err
				}

				start := time.Now()
				result, evalErr := f(c.Params)
				c.Cost = time.Since(start).Seconds()
				c.WorkerInformation = map[string]any{"worker": w}

				if evalErr != nil {
					log.Error(evalErr, "Evaluation failed", "params", c.Params)

					if err := assistant.Update(c, ho.StatusFinishedInvalid); err != nil {
						return err
					}

					continue
				}

				c.SetResult(result)

				if err := assistant.Update(c, ho.StatusFinished); err != nil {
					return err
				}
			}

			return nil
		})
	}

	runErr := g.Wait()

	if err := assistant.Persist(context.Background()); err != nil {
		log.Error(err, "Failed to persist experiment")
	}

	best := assistant.BestCandidate()
	if best == nil {
		fmt.Fprintf(out, "%s: no valid result after %d steps\n", exp.Name, assistant.Steps())

		return runErr
	}

	fmt.Fprintf(out, "%s: best %g after %d steps\n", exp.Name, *best.Result, assistant.Steps())

	for _, name := range space.Names() {
		fmt.Fprintf(out, "  %s = %v\n", name, best.Params[name])
	}

	return runErr
}
