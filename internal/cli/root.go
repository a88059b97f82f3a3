package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/azure/danmaku-digest-bot/internal/analysis"
	"github.com/azure/danmaku-digest-bot/internal/app"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// ConfigLoader supplies the configuration each command runs with
type ConfigLoader func() (*config.Config, error)

// NewRoot builds the danmaku command tree
func NewRoot(load ConfigLoader) *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "danmaku",
		Short:         "Segment a video timeline by danmaku density and summarize each segment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(cmd.ErrOrStderr())
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logrus.SetLevel(logrus.WarnLevel)
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output to stderr")

	root.AddCommand(newAnalyzeCommand(load))
	root.AddCommand(newMessagesCommand(load))
	root.AddCommand(newCommentsCommand(load))
	root.AddCommand(newHighlightsCommand(load))
	root.AddCommand(newWatchlistCommand(load))
	root.AddCommand(newVersionCommand())

	return root
}

func newService(ctx context.Context, load ConfigLoader, notify bool) (*analysis.Service, *config.Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.NewAnalysisService(ctx, cfg, notify)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newAnalyzeCommand(load ConfigLoader) *cobra.Command {
	var (
		p      config.Params
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <video-id>",
		Short: "Segment one video and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, _, err := newService(ctx, load, false)
			if err != nil {
				return err
			}

			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), svc.AnalyzeText(ctx, args[0], p))
				return nil
			}

			result, err := svc.Analyze(ctx, args[0], p)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Artifact)
		},
	}

	cmd.Flags().IntVar(&p.WindowSec, "window", 0, "sliding window length in seconds")
	cmd.Flags().IntVar(&p.StepSec, "step", 0, "sliding window step in seconds")
	cmd.Flags().IntVar(&p.MinSegmentSec, "min-segment", 0, "minimum segment length in seconds")
	cmd.Flags().IntVar(&p.MaxSegmentSec, "max-segment", 0, "maximum segment length in seconds (0 keeps the default, -1 adapts to the video)")
	cmd.Flags().IntVar(&p.MaxDurationSec, "max-duration", 0, "analyze only the first N seconds (-1 removes a configured cap)")
	cmd.Flags().IntVar(&p.TopComments, "top-comments", 0, "number of top comments to match against segments")
	cmd.Flags().IntVar(&p.MergeThreshold, "merge-threshold", 0, "message count above which summaries are batched")
	cmd.Flags().IntVar(&p.BatchSize, "batch-size", 0, "messages per summary batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the structured artifact instead of the text report")
	return cmd
}

func newMessagesCommand(load ConfigLoader) *cobra.Command {
	var limit, from, to int

	cmd := &cobra.Command{
		Use:   "messages <video-id>",
		Short: "List danmaku in a time range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, _, err := newService(ctx, load, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.ListMessages(ctx, args[0], limit, from, to))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", analysis.DefaultMessageLimit, "maximum danmaku to list")
	cmd.Flags().IntVar(&from, "from", 0, "range start in seconds")
	cmd.Flags().IntVar(&to, "to", 0, "range end in seconds (0 means one platform segment)")
	return cmd
}

func newCommentsCommand(load ConfigLoader) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "comments <video-id>",
		Short: "List the most liked comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, _, err := newService(ctx, load, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.ListComments(ctx, args[0], n))
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "count", "n", analysis.DefaultCommentLimit, "number of comments")
	return cmd
}

func newHighlightsCommand(load ConfigLoader) *cobra.Command {
	var window, top int

	cmd := &cobra.Command{
		Use:   "highlights <video-id>",
		Short: "Rank fixed windows by danmaku count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, _, err := newService(ctx, load, false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.Highlights(ctx, args[0], window, top))
			return nil
		},
	}

	cmd.Flags().IntVar(&window, "window", analysis.DefaultHighlightWindowSec, "window length in seconds")
	cmd.Flags().IntVar(&top, "top", analysis.DefaultHighlights, "number of windows to show")
	return cmd
}

func newWatchlistCommand(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "watchlist [video-id...]",
		Short: "Analyze the configured watchlist once and deliver the reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, cfg, err := newService(ctx, load, true)
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				ids = cfg.Watchlist
			}
			if len(ids) == 0 {
				return fmt.Errorf("no videos given and WATCHLIST is empty")
			}
			return svc.AnalyzeWatchlist(ctx, ids)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
