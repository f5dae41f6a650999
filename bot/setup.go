package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blacktop/polybot/config"
	"github.com/blacktop/polybot/internal/logutil"
	"github.com/blacktop/polybot/service/bluesky"
	"github.com/blacktop/polybot/service/mastodon"
	"github.com/blacktop/polybot/service/twitter"
)

var rule = strings.Repeat("-", 80)

// setup walks through every network that is not configured yet, verifies
// the entered credentials and writes the config file after each success.
func (b *Bot) setup(ctx context.Context, cfg *config.Config) error {
	p := b.prompter()
	fmt.Fprintln(p.out, "Polybot setup")
	fmt.Fprintln(p.out, strings.Repeat("=", 80))

	for _, n := range networks {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if n.configured(cfg) {
			fmt.Fprintf(p.out, "Service %s is already configured\n%s\n", n.name, rule)
			continue
		}
		ok, err := p.Confirm("Configure " + n.name)
		if err != nil {
			return setupAborted(err)
		}
		if !ok {
			fmt.Fprintf(p.out, "OK, skipping.\n%s\n", rule)
			continue
		}

		if err := b.setupNetwork(ctx, p, n, cfg); err != nil {
			if errors.Is(err, io.EOF) {
				return setupAborted(err)
			}
			n.reset(cfg)
			fmt.Fprintf(p.out, "Configuring %s failed: %v\n%s\n", n.name, err, rule)
			continue
		}
		fmt.Fprintf(p.out, "Configuring %s succeeded, writing config\n", n.name)
		if err := cfg.Save(b.configPath); err != nil {
			return err
		}
		fmt.Fprintln(p.out, rule)
	}

	fmt.Fprintf(p.out, "Setup complete. To reconfigure, remove the service details from %s\n", b.configPath)
	return nil
}

func (b *Bot) setupNetwork(ctx context.Context, p *prompter, n network, cfg *config.Config) error {
	if err := n.setup(ctx, p, cfg); err != nil {
		return err
	}
	svc, err := n.build(ctx, cfg)
	if err != nil {
		return err
	}
	return svc.Auth(ctx)
}

func setupAborted(err error) error {
	if errors.Is(err, io.EOF) {
		logutil.Warnf("setup aborted: end of input")
		return nil
	}
	return err
}

func setupTwitter(_ context.Context, p *prompter, cfg *config.Config) error {
	fmt.Fprintln(p.out, "Create an app with read and write access at https://developer.x.com/en/portal/dashboard")
	var (
		c   twitter.Config
		err error
	)
	if c.APIKey, err = p.Required("API key: ", false); err != nil {
		return err
	}
	if c.APISecret, err = p.Required("API key secret: ", true); err != nil {
		return err
	}
	if c.AccessToken, err = p.Required("Access token: ", false); err != nil {
		return err
	}
	if c.AccessSecret, err = p.Required("Access token secret: ", true); err != nil {
		return err
	}
	cfg.Twitter = &c
	return nil
}

func setupMastodon(ctx context.Context, p *prompter, cfg *config.Config) error {
	server, err := p.Required("Mastodon server (e.g. mastodon.social): ", false)
	if err != nil {
		return err
	}

	software, err := mastodon.DetectServerSoftware(ctx, server)
	switch {
	case err != nil:
		logutil.Warnf("could not detect server software: %v", err)
	case !software.IsMastodon():
		fmt.Fprintf(p.out, "Server runs %s; it will be treated as Mastodon-compatible.\n", software)
	default:
		logutil.Debugf("server runs %s", software)
	}

	token, err := p.Secret("Access token (leave empty to authorize in the browser): ")
	if err != nil {
		return err
	}
	if token != "" {
		cfg.Mastodon = &mastodon.Config{Server: server, AccessToken: token}
		return nil
	}

	app, authURI, err := mastodon.RegisterApp(ctx, server)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Open this URL and authorize polybot:\n\n  %s\n\n", authURI)
	code, err := p.Required("Authorization code: ", false)
	if err != nil {
		return err
	}
	c, err := mastodon.ExchangeCode(ctx, app, code)
	if err != nil {
		return err
	}
	cfg.Mastodon = &c
	return nil
}

func setupBluesky(_ context.Context, p *prompter, cfg *config.Config) error {
	var (
		c   bluesky.Config
		err error
	)
	if c.Handle, err = p.Required("Handle (e.g. bot.bsky.social): ", false); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Create an app password at https://bsky.app/settings/app-passwords")
	if c.AppPassword, err = p.Required("App password: ", true); err != nil {
		return err
	}
	if c.PDSURL, err = p.Line(fmt.Sprintf("PDS URL [%s]: ", bluesky.DefaultPDSURL)); err != nil {
		return err
	}
	cfg.Bluesky = &c
	return nil
}
