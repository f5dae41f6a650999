// Package bot runs a post-only bot against every configured network.
//
// A bot is a name plus a main function:
//
//	b := bot.New("weather", func(ctx context.Context, b *bot.Bot) error {
//		return b.Post(ctx, polybot.NewRequest("Sunny, 21°C")).Err()
//	})
//	if err := b.Execute(); err != nil {
//		os.Exit(1)
//	}
//
// Execute parses the command line (--live, --interactive, --setup,
// --profile, --loglevel, --verbose), loads <name>[-profile].yaml, connects the
// configured networks, loads the bot's state, calls main and saves the state
// on the way out. The first SIGINT or SIGTERM saves the state and cancels
// main's context; a second one kills the process. SIGHUP saves the state
// without stopping. Without --live the bot runs in dry-run mode and only
// logs what it would post.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/config"
	"github.com/blacktop/polybot/internal/logutil"
	"github.com/blacktop/polybot/state"
)

// ErrNoServices is returned by Run when posting was requested but no network is usable.
var ErrNoServices = errors.New("no services to post to; use --setup to configure some")

// MainFunc is the body of a bot. It runs once per invocation; a cancelled
// ctx means the process received SIGINT or SIGTERM.
type MainFunc func(ctx context.Context, b *Bot) error

// Bot holds a bot's identity and its runtime: services, state and options.
type Bot struct {
	Name string
	Main MainFunc
	// Path is the default directory for config and state files.
	Path string
	// Services are extra adapters posted to alongside the configured networks.
	Services []polybot.Service

	In  io.Reader
	Out io.Writer

	opts       Options
	configPath string
	config     *config.Config
	services   []polybot.Service
	state      atomic.Pointer[state.Store]

	promptOnce sync.Once
	prompt     *prompter
}

// New returns a bot reading from stdin and writing prompts to stdout.
func New(name string, main MainFunc) *Bot {
	return &Bot{
		Name: name,
		Main: main,
		In:   os.Stdin,
		Out:  os.Stdout,
	}
}

// Command returns the cobra command running the bot with its flags.
func (b *Bot) Command() *cobra.Command {
	var opts Options
	cmd := &cobra.Command{
		Use:           b.Name,
		Short:         fmt.Sprintf("Run the %s bot", b.Name),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return b.Run(cmd.Context(), opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	cmd.Flags().SortFlags = false
	return cmd
}

// Execute parses os.Args and runs the bot. Errors are logged before being
// returned.
func (b *Bot) Execute() error {
	if err := b.Command().ExecuteContext(context.Background()); err != nil {
		logutil.Errorf("%v", err)
		return err
	}
	return nil
}

// Options returns the options of the current run.
func (b *Bot) Options() Options { return b.opts }

// Config returns the loaded configuration file. It is nil outside Run.
func (b *Bot) Config() *config.Config { return b.config }

// State returns the bot's state store. It is nil outside Run.
func (b *Bot) State() *state.Store { return b.state.Load() }

// ActiveServices returns the services posts go to.
func (b *Bot) ActiveServices() []polybot.Service { return b.services }

// Run executes the bot once with opts.
func (b *Bot) Run(ctx context.Context, opts Options) (err error) {
	if opts.LogLevel != "" {
		if err := logutil.SetLevel(opts.LogLevel); err != nil {
			return err
		}
	}
	if opts.Verbose {
		logutil.SetVerbose(true)
	}
	if b.Main == nil && !opts.Setup {
		return errors.New("bot has no main function")
	}
	b.opts = opts
	logutil.Infof("polybot starting...")

	dir := opts.ConfigDir
	if dir == "" {
		dir = b.Path
	}
	if dir == "" {
		dir = "."
	}
	ns := state.Namespace{Bot: b.Name, Profile: opts.Profile}
	b.configPath = config.Path(dir, ns)
	cfg, err := config.Load(b.configPath)
	if err != nil {
		return err
	}
	b.config = cfg

	if opts.Setup {
		return b.setup(ctx, cfg)
	}

	if !opts.posting() {
		logutil.Warnf("running in dry-run mode - not posting updates. Pass --live to run in live mode, or --interactive to run in interactive mode.")
	}

	b.services, err = b.connect(ctx, cfg, opts)
	if err != nil {
		return err
	}
	if len(b.services) == 0 {
		logutil.Warnf("no services to post to. Use --setup to configure some!")
		if opts.posting() {
			return ErrNoServices
		}
	}

	backend, closeBackend, err := openBackend(ctx, cfg, dir)
	if err != nil {
		return err
	}
	defer closeBackend()

	store, err := state.Open(backend, ns)
	if err != nil {
		return err
	}
	b.state.Store(store)
	defer func() {
		logutil.Infof("saving state...")
		if serr := store.Save(); serr != nil {
			err = errors.Join(err, serr)
		}
		logutil.Infof("shut down")
	}()

	ctx, stopSignals := b.watchSignals(ctx)
	defer stopSignals()

	logutil.Infof("running")
	err = b.Main(ctx, b)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logutil.Infof("interrupted")
		return nil
	}
	return err
}

func openBackend(ctx context.Context, cfg *config.Config, dir string) (state.Backend, func(), error) {
	if cfg.State.Backend == config.BackendSQLite {
		db, err := state.OpenSQLite(ctx, cfg.DatabasePath(dir))
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logutil.Warnf("closing state database: %v", err)
			}
		}, nil
	}
	backend, err := cfg.FileBackend(dir)
	if err != nil {
		return nil, nil, err
	}
	return backend, func() {}, nil
}

// watchSignals saves the state on every SIGHUP. The first SIGINT or SIGTERM
// saves the state and cancels the returned context; after that both signals
// get their default behaviour again, so a main that ignores ctx can still be
// killed. stop waits for an in-flight save.
func (b *Bot) watchSignals(ctx context.Context) (_ context.Context, stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	hangup := make(chan os.Signal, 1)
	notifyHangup(hangup)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		pending := interrupt
		for {
			select {
			case <-hangup:
				logutil.Infof("saving state on hangup")
				b.saveState()
			case sig := <-pending:
				signal.Stop(interrupt)
				pending = nil
				logutil.Warnf("received %v, shutting down (again to force)", sig)
				b.saveState()
				cancel()
			case <-done:
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(hangup)
		signal.Stop(interrupt)
		close(done)
		<-exited
		cancel()
	}
}

func (b *Bot) saveState() {
	if err := b.State().Save(); err != nil {
		logutil.Errorf("saving state: %v", err)
	}
}

func (b *Bot) prompter() *prompter {
	b.promptOnce.Do(func() {
		in, out := b.In, b.Out
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		b.prompt = newPrompter(in, out)
	})
	return b.prompt
}
