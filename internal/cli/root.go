// Package cli defines the sleepctl commands. Each invocation opens the
// configured store, applies one action for --user and prints the bot reply.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/bot"
	"github.com/yourname/sleepbot/internal/config"
	"github.com/yourname/sleepbot/internal/service"
	"github.com/yourname/sleepbot/internal/storage"
)

// Loader supplies configuration; config.Load in production.
type Loader func() (*config.Config, error)

type options struct {
	load   Loader
	clock  clockwork.Clock
	userID int64
	name   string

	cfg     *config.Config
	store   storage.Store
	tracker *service.Tracker
	bot     *bot.Bot
}

// NewRootCmd builds the sleepctl command tree. clock may be nil.
func NewRootCmd(load Loader, clock clockwork.Clock) *cobra.Command {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return newRootCmd(&options{load: load, clock: clock})
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "sleepctl",
		Short: "Drive the sleep tracker from the terminal",
		Long: `sleepctl applies sleep tracker actions for one chat user against the
configured store and prints the reply the bot would send.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return o.open(cmd.Context())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().Int64Var(&o.userID, "user", 0, "chat user id")
	root.PersistentFlags().StringVar(&o.name, "name", "", "display name used in replies")
	_ = root.MarkPersistentFlagRequired("user")

	root.AddCommand(
		o.actionCmd("start", "Register the user", func([]string) (service.Action, error) {
			return service.Register{UserName: o.name}, nil
		}, cobra.NoArgs),
		o.actionCmd("sleep", "Start a sleep session", func([]string) (service.Action, error) {
			return service.StartSleep{}, nil
		}, cobra.NoArgs),
		o.actionCmd("wake", "Finish the current sleep session", func([]string) (service.Action, error) {
			return service.Wake{}, nil
		}, cobra.NoArgs),
		o.actionCmd("rate QUALITY", "Rate the last session from 1 to 5", parseRate, cobra.ExactArgs(1)),
		o.actionCmd("note TEXT", "Attach a note to the rated session", func(args []string) (service.Action, error) {
			return service.WriteNote{Text: strings.Join(args, " ")}, nil
		}, cobra.MinimumNArgs(1)),
		o.actionCmd("skip", "Skip writing a note", func([]string) (service.Action, error) {
			return service.SkipNote{}, nil
		}, cobra.NoArgs),
		o.statusCmd(),
		o.statsCmd(),
	)
	return root
}

// Execute runs sleepctl. Called from main.
func Execute() {
	root := NewRootCmd(config.Load, nil)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) open(ctx context.Context) error {
	if o.userID <= 0 {
		return errors.New("--user must be a positive chat id")
	}
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	o.cfg = cfg
	o.store = store
	o.tracker = service.NewTracker(store, o.clock, logger, nil)
	o.bot = bot.New(o.tracker, logger)
	return nil
}

func (o *options) close() error {
	if o.store == nil {
		return nil
	}
	err := o.store.Close()
	o.store = nil
	return err
}

// closing wraps a RunE so the store is closed whether or not it fails.
func (o *options) closing(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := o.close(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

func (o *options) user() internal.User {
	return internal.User{ID: o.userID, Name: o.name}
}

func (o *options) actionCmd(use, short string, build func(args []string) (service.Action, error), args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: o.closing(func(cmd *cobra.Command, args []string) error {
			action, err := build(args)
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), o.bot.Do(cmd.Context(), o.user(), action))
			return nil
		}),
	}
}

func printReply(w io.Writer, r bot.Reply) {
	fmt.Fprintln(w, r.Text)
	if len(r.Keyboard) > 0 {
		fmt.Fprintf(w, "[%s]\n", strings.Join(r.Keyboard, "] ["))
	}
}
