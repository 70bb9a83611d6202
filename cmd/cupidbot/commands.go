package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/edgard/cupidbot/internal/app"
	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/platform"
)

type cli struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cupidbot",
		Short:         "Conversation assistant for dating platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "./config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")

	root.AddCommand(
		c.runCmd(),
		c.loginCmd(),
		c.syncCmd(),
		c.analyzeCmd(),
		c.generateCmd(),
		c.respondCmd(),
		c.insightsCmd(),
		c.flowCmd(),
		c.suggestCmd(),
		c.activityCmd(),
		c.statsCmd(),
		c.archiveCmd(),
	)
	return root
}

// withApp loads configuration, builds the application and runs fn with it.
// Logs go to stdout for the service and to stderr for one-shot commands, so
// their JSON output stays clean.
func (c *cli) withApp(cmd *cobra.Command, service bool, fn func(ctx context.Context, a *app.App) error) error {
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", c.envFile, err)
	}

	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", c.configPath, "error", err)
		return err
	}

	var log *slog.Logger
	if service {
		log = logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	} else {
		log = logger.NewLoggerTo(os.Stderr, cfg.Logger.Level, cfg.Logger.JSON)
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", "error", err)
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and conversation monitors until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var req platform.AuthRequest
	cmd := &cobra.Command{
		Use:   "login <platform>",
		Short: "Authenticate with a platform and store the session in the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				if err := a.Platforms.Authenticate(ctx, args[0], req); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"platform": args[0], "authenticated": true})
			})
		},
	}
	cmd.Flags().StringVar(&req.Token, "token", "", "Existing session token")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "Phone number for SMS verification")
	cmd.Flags().StringVar(&req.VerificationCode, "code", "", "SMS verification code")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sync <platform>",
		Short: "Fetch and store the latest matches from a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				all, fresh, err := a.Platforms.SyncMatches(ctx, args[0], limit)
				if err != nil {
					return err
				}
				for i := range fresh {
					if _, err := a.Notifier.NotifyNewMatch(ctx, &fresh[i]); err != nil {
						slog.WarnContext(ctx, "Failed to notify new match", "match_id", fresh[i].ID, "error", err)
					}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"matches": all, "new": len(fresh)})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum matches to fetch")
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <match-id>",
		Short: "Analyze a stored match profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				analysis, err := a.Assistant.AnalyzeMatch(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), analysis)
			})
		},
	}
}

// draftFlags are the approval options shared by generate and respond.
type draftFlags struct {
	send bool
	edit string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.send, "send", false, "Approve the draft and send it")
	cmd.Flags().StringVar(&f.edit, "edit", "", "Replace the draft text before sending (implies approval)")
}

// finish applies the approval flags to draft and prints the result.
func (f *draftFlags) finish(ctx context.Context, cmd *cobra.Command, a *app.App, draft model.Message) error {
	if f.edit != "" {
		if err := a.Assistant.Edit(&draft, f.edit); err != nil {
			return err
		}
	}
	if f.send {
		if f.edit == "" {
			a.Assistant.Approve(&draft)
		}
		if err := a.Assistant.Send(ctx, "", &draft); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"message": draft, "sent": f.send})
}

func (c *cli) generateCmd() *cobra.Command {
	var flags draftFlags
	cmd := &cobra.Command{
		Use:   "generate <match-id>",
		Short: "Draft an opening message for a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				draft, err := a.Assistant.GenerateInitialMessage(ctx, args[0])
				if err != nil {
					return err
				}
				return flags.finish(ctx, cmd, a, draft)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) respondCmd() *cobra.Command {
	var flags draftFlags
	cmd := &cobra.Command{
		Use:   "respond <conversation-id>",
		Short: "Draft a reply in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				draft, err := a.Assistant.GenerateResponse(ctx, args[0])
				if err != nil {
					return err
				}
				return flags.finish(ctx, cmd, a, draft)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) insightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights <conversation-id>",
		Short: "Report statistics and insights for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Analytics.Insights(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func (c *cli) flowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flow <conversation-id>",
		Short: "Report engagement, response rate and sentiment for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				flow, err := a.Analytics.Flow(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), flow)
			})
		},
	}
}

func (c *cli) suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <conversation-id>",
		Short: "Suggest next actions for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				suggestions, err := a.Tracker.SuggestActions(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), suggestions)
			})
		},
	}
}

func (c *cli) activityCmd() *cobra.Command {
	var (
		days   int
		userID string
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show daily and hourly message activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				activity, err := a.Analytics.Activity(ctx, days, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), activity)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Number of days to include (default from analytics.activity_days)")
	cmd.Flags().StringVar(&userID, "user", "", "Restrict to one user")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show match, conversation and message totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				stats, err := a.Analytics.UserStats(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Restrict to one user")
	return cmd
}

func (c *cli) archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <conversation-id>",
		Short: "Archive a conversation and stop following it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				if err := a.Tracker.Archive(ctx, args[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"conversation_id": args[0], "status": model.StatusArchived})
			})
		},
	}
}
