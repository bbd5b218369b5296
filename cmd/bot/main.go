package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rg/arcguard/internal/announce"
	"github.com/rg/arcguard/internal/bot"
	"github.com/rg/arcguard/internal/config"
	"github.com/rg/arcguard/internal/messaging"
	"github.com/rg/arcguard/internal/messaging/telegram"
	"github.com/rg/arcguard/internal/metrics"
	"github.com/rg/arcguard/internal/moderation"
	"github.com/rg/arcguard/internal/security"
	"github.com/rg/arcguard/internal/spam"
	"github.com/rg/arcguard/internal/storage"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := &cli.App{
		Name:   "arcguard",
		Usage:  "Telegram group moderation bot",
		Writer: out,
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
			Value:   config.DefaultPath,
			EnvVars: []string{"CONFIG_PATH"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		filtersCmd,
		checkCmd,
	}

	return app
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return nil, err
	}
	sanitizer, err := security.NewSanitizer(security.DefaultPatterns, cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	handler := security.NewRedactingHandler(cfg.Log.Logger(os.Stderr).Handler(), sanitizer)
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := cfg.RequireToken(); err != nil {
			return err
		}
		slog.Info("Starting arcguard")
		fmt.Fprint(os.Stderr, cfg)

		rules, err := loadRules(cfg)
		if err != nil {
			return err
		}

		platform, err := telegram.NewClient(cfg.Telegram.Token)
		if err != nil {
			return err
		}

		executor := bot.NewExecutor(platform, bot.Notices{
			Ban:  cfg.Moderation.BanNotice,
			Mute: cfg.Moderation.MuteNotice,
		}, cfg.Executor.Workers, cfg.Executor.QueueSize)

		var replyLimiter *bot.RateLimiter
		if cfg.Filters.ReplyLimit > 0 {
			replyLimiter = bot.NewRateLimiter(cfg.Filters.ReplyLimit, cfg.Filters.ReplyWindow)
		}

		handler := bot.NewHandler(
			platform,
			rules.pipeline,
			rules.registry,
			rules.lists,
			rules.detector,
			executor,
			bot.NewAdminCache(platform, cfg.Moderation.AdminCacheTTL),
			replyLimiter,
			bot.Options{
				AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
				ListCommand:    cfg.Moderation.ListCommand,
				StatusCommand:  cfg.Moderation.StatusCommand,
				BotUsername:    platform.Username(),
			},
		)
		slog.Info("Bot handler initialized", "allowed_chats", len(cfg.Telegram.AllowedChatIDs))

		sweeper := spam.NewSweeper(rules.detector, cfg.Spam.SweepInterval)
		sweeper.SetCallback(func(removed int, stats spam.Stats) {
			metrics.SpamWindows.Set(float64(stats.Windows))
			metrics.SpamRecords.Set(float64(stats.Records))
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			sweeper.Start(ctx)
			return nil
		})
		if replyLimiter != nil {
			g.Go(func() error {
				replyLimiter.StartCleanup(ctx, time.Minute)
				return nil
			})
		}
		if cfg.Metrics.Listen != "" {
			g.Go(func() error {
				return metrics.Serve(ctx, cfg.Metrics.Listen)
			})
		}

		if cfg.Announcements.Enabled {
			store, err := storage.NewStorage(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			scheduler, err := announce.NewScheduler(platform, store, announce.Config{
				Schedule: cfg.Announcements.Schedule,
				ChatIDs:  cfg.Telegram.AllowedChatIDs,
				Messages: cfg.Announcements.Messages,
				Pin:      cfg.Announcements.PinEnabled(),
			})
			if err != nil {
				return err
			}
			g.Go(func() error {
				return scheduler.Start(ctx)
			})
		}

		g.Go(func() error {
			return serve(ctx, platform, executor, bot.Chain(handler.HandleMessage, bot.Recover, bot.Logger))
		})

		slog.Info("Bot is ready to receive messages")
		return g.Wait()
	},
}

// serve polls for messages until ctx is done. The executor outlives the
// poller so that actions queued by the last delivered messages still run.
func serve(ctx context.Context, platform messaging.Platform, executor *bot.Executor, handler messaging.MessageHandler) error {
	execCtx, stopExecutor := context.WithCancel(context.WithoutCancel(ctx))
	defer stopExecutor()

	execDone := make(chan error, 1)
	go func() {
		execDone <- executor.Start(execCtx)
	}()

	pollDone := make(chan struct{})
	defer close(pollDone)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down, stopping update polling")
			platform.Stop()
		case <-pollDone:
		}
	}()

	err := platform.Start(handler)

	slog.Info("Update polling stopped, draining queued actions", "pending", executor.Pending())
	stopExecutor()
	if execErr := <-execDone; err == nil {
		err = execErr
	}
	return err
}

var filtersCmd = &cli.Command{
	Name:  "filters",
	Usage: "print the sorted filter trigger listing",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		registry, err := loadFilters(cfg.Filters)
		if err != nil {
			return err
		}
		for _, page := range bot.FilterListing(registry) {
			fmt.Fprintln(cctx.App.Writer, page)
		}
		return nil
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "run one message through the moderation pipeline and print the decision",
	ArgsUsage: "TEXT",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "admin",
			Usage: "treat the sender as a chat admin",
		},
		&cli.BoolFlag{
			Name:  "forwarded",
			Usage: "treat the message as forwarded",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "sender display name",
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "sender handle",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return fmt.Errorf("message text is required")
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		rules, err := loadRules(cfg)
		if err != nil {
			return err
		}

		action := rules.pipeline.Evaluate(&moderation.Message{
			ID:             "0",
			ChatID:         "cli",
			SenderID:       "cli",
			SenderName:     cctx.String("name"),
			SenderUsername: cctx.String("username"),
			Text:           strings.Join(cctx.Args().Slice(), " "),
			SentAt:         time.Now(),
			Forwarded:      cctx.Bool("forwarded"),
			SenderIsAdmin:  cctx.Bool("admin"),
		})

		fmt.Fprintln(cctx.App.Writer, action.String())
		if action.Match != "" {
			fmt.Fprintf(cctx.App.Writer, "match: %s\n", action.Match)
		}
		return nil
	},
}
