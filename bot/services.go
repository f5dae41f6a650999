package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/config"
	"github.com/blacktop/polybot/internal/logutil"
	"github.com/blacktop/polybot/service/bluesky"
	"github.com/blacktop/polybot/service/mastodon"
	"github.com/blacktop/polybot/service/twitter"
)

// network ties a built-in service to its config section.
type network struct {
	name string
	// configured reports whether the config file has the section.
	configured func(cfg *config.Config) bool
	// fromEnv reports whether credentials are present in the environment.
	fromEnv func() bool
	build   func(ctx context.Context, cfg *config.Config) (polybot.Service, error)
	// setup prompts for credentials and stores them in cfg.
	setup func(ctx context.Context, p *prompter, cfg *config.Config) error
	reset func(cfg *config.Config)
}

func (n network) enabled(cfg *config.Config) bool {
	return n.configured(cfg) || n.fromEnv()
}

var networks = []network{
	{
		name:       twitter.Name,
		configured: func(cfg *config.Config) bool { return cfg.Twitter != nil },
		fromEnv:    twitter.EnvConfigured,
		build: func(ctx context.Context, cfg *config.Config) (polybot.Service, error) {
			var base twitter.Config
			if cfg.Twitter != nil {
				base = *cfg.Twitter
			}
			return twitter.New(ctx, base)
		},
		setup: setupTwitter,
		reset: func(cfg *config.Config) { cfg.Twitter = nil },
	},
	{
		name:       mastodon.Name,
		configured: func(cfg *config.Config) bool { return cfg.Mastodon != nil },
		fromEnv:    mastodon.EnvConfigured,
		build: func(ctx context.Context, cfg *config.Config) (polybot.Service, error) {
			var base mastodon.Config
			if cfg.Mastodon != nil {
				base = *cfg.Mastodon
			}
			return mastodon.New(ctx, base)
		},
		setup: setupMastodon,
		reset: func(cfg *config.Config) { cfg.Mastodon = nil },
	},
	{
		name:       bluesky.Name,
		configured: func(cfg *config.Config) bool { return cfg.Bluesky != nil },
		fromEnv:    bluesky.EnvConfigured,
		build: func(ctx context.Context, cfg *config.Config) (polybot.Service, error) {
			var base bluesky.Config
			if cfg.Bluesky != nil {
				base = *cfg.Bluesky
			}
			return bluesky.New(ctx, base)
		},
		setup: setupBluesky,
		reset: func(cfg *config.Config) { cfg.Bluesky = nil },
	},
}

// connect builds the services for the configured networks plus the bot's
// custom ones. When posting, each is authenticated and those that fail are
// left out; otherwise each is wrapped in a dry-run service.
func (b *Bot) connect(ctx context.Context, cfg *config.Config, opts Options) ([]polybot.Service, error) {
	targets, err := normalizeTargets(opts.Targets)
	if err != nil {
		return nil, err
	}

	var (
		candidates []polybot.Service
		errs       []error
	)
	for _, n := range networks {
		if targets != nil && !slices.Contains(targets, n.name) {
			continue
		}
		if !n.enabled(cfg) {
			continue
		}
		svc, err := n.build(ctx, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.name, err))
			continue
		}
		candidates = append(candidates, svc)
	}
	candidates = append(candidates, b.Services...)

	services := make([]polybot.Service, 0, len(candidates))
	for _, svc := range candidates {
		if !opts.posting() {
			services = append(services, dryRun{svc})
			continue
		}
		if err := svc.Auth(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			continue
		}
		services = append(services, svc)
	}

	for _, err := range errs {
		logutil.Errorf("skipping %v", err)
	}
	if len(services) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return services, nil
}

// dryRun logs posts instead of publishing them.
type dryRun struct {
	polybot.Service
}

func (d dryRun) Auth(context.Context) error { return nil }

func (d dryRun) Publish(_ context.Context, post polybot.Post) (polybot.PostRef, error) {
	ref := polybot.PostRef{ID: uuid.NewString()}
	if post.ReplyTo != nil {
		logutil.Infof("[dry-run] %s: would reply to %s: %q", d.Name(), post.ReplyTo.ID, post.Text)
	} else {
		logutil.Infof("[dry-run] %s: would post %q", d.Name(), post.Text)
	}
	for _, img := range post.Images {
		logutil.Infof("[dry-run] %s: image %s, %s, alt %q", d.Name(), img.MIMEType, humanize.Bytes(uint64(len(img.Data))), img.Description)
	}
	if post.ReplyTo != nil {
		root := *post.ReplyTo
		if root.Root != nil {
			root = *root.Root
		}
		ref.Root = &root
	}
	return ref, nil
}
