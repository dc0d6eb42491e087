package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"MedArticles/internal/domain"
	"MedArticles/internal/infrastructure/storage"
)

// ErrRunFailed is returned after a failed run summary has been printed.
var ErrRunFailed = errors.New("run failed")

// Service is what the commands drive. The error return covers construction
// failures only; run failures are reported inside the summary.
type Service interface {
	RunRange(ctx context.Context, window domain.DateRange) (domain.RunSummary, error)
	RunWeekly(ctx context.Context) (domain.RunSummary, error)
	RunSinceLastUpdate(ctx context.Context) (domain.RunSummary, error)
	ProcessSingle(ctx context.Context, identifier string) (domain.RunSummary, error)
	Reclassify(ctx context.Context, identifiers []string) (domain.RunSummary, error)
	SetHidden(ctx context.Context, identifier string, hidden bool) error
	Statistics(ctx context.Context) (storage.Stats, error)
	Serve(ctx context.Context) error
	Close() error
}

// Opener builds the service for the given config path.
type Opener func(ctx context.Context, configPath string) (Service, error)

type runFunc func(ctx context.Context, svc Service, cmd *cobra.Command, args []string) error

// wrapper opens the service around a command body and closes it afterwards.
type wrapper func(run runFunc) func(*cobra.Command, []string) error

// NewRootCommand assembles the medarticles command tree.
func NewRootCommand(open Opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "medarticles",
		Short:         "Collect, triage and score clinical literature",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults to $MEDARTICLES_CONFIG)")

	var with wrapper = func(run runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, err := open(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer svc.Close()
			return run(cmd.Context(), svc, cmd, args)
		}
	}

	root.AddCommand(
		newRunCommand(with),
		newWeeklyCommand(with),
		newSinceLastCommand(with),
		newSingleCommand(with),
		newReclassifyCommand(with),
		newHideCommand(with),
		newServeCommand(with),
		newStatsCommand(with),
	)
	return root
}

func newRunCommand(with wrapper) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process articles published in a date range",
		Long: `Searches the configured journals for articles published between --start
and --end (inclusive, YYYY/MM/DD or YYYY-MM-DD), then filters, scores and stores them.`,
		Args: cobra.NoArgs,
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, _ []string) error {
			window, err := domain.ParseDateRange(start, end)
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout())(svc.RunRange(ctx, window))
		}),
	}
	cmd.Flags().StringVar(&start, "start", "", "first publication day")
	cmd.Flags().StringVar(&end, "end", "", "last publication day")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newWeeklyCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "weekly",
		Short: "Process the articles of the last seven days",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, _ []string) error {
			return report(cmd.OutOrStdout())(svc.RunWeekly(ctx))
		}),
	}
}

func newSinceLastCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "since-last",
		Short: "Process articles published since the newest stored one",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, _ []string) error {
			return report(cmd.OutOrStdout())(svc.RunSinceLastUpdate(ctx))
		}),
	}
}

func newSingleCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "single <pmid-or-url>",
		Short: "Classify and store one article, skipping the relevance filter",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, args []string) error {
			return report(cmd.OutOrStdout())(svc.ProcessSingle(ctx, args[0]))
		}),
	}
}

func newReclassifyCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify [pmid-or-url...]",
		Short: "Score stored articles again and replace their classifications",
		Long: `Without arguments every stored relevant article is scored again. With
arguments only those articles are, and each result is printed with its full
ranking breakdown.`,
		Args: cobra.ArbitraryArgs,
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, args []string) error {
			return report(cmd.OutOrStdout())(svc.Reclassify(ctx, args))
		}),
	}
}

func newHideCommand(with wrapper) *cobra.Command {
	var unhide bool
	cmd := &cobra.Command{
		Use:   "hide <pmid-or-url>",
		Short: "Hide a stored article from the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, args []string) error {
			if err := svc.SetHidden(ctx, args[0], !unhide); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"article": args[0], "hidden": !unhide})
		}),
	}
	cmd.Flags().BoolVar(&unhide, "unhide", false, "make the article visible again")
	return cmd
}

func newServeCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run since-last updates on a schedule and expose metrics",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, svc Service, _ *cobra.Command, _ []string) error {
			return svc.Serve(ctx)
		}),
	}
}

func newStatsCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print totals of the stored articles",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, svc Service, cmd *cobra.Command, _ []string) error {
			stats, err := svc.Statistics(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		}),
	}
}

// report prints the summary and maps a failed run onto ErrRunFailed.
func report(w io.Writer) func(domain.RunSummary, error) error {
	return func(summary domain.RunSummary, err error) error {
		if err != nil {
			return err
		}
		if err := writeJSON(w, summary); err != nil {
			return err
		}
		if !summary.Success {
			return fmt.Errorf("%w at %s stage", ErrRunFailed, summary.FailedStage)
		}
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
