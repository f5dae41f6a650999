package mastodon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/internal/logutil"
)

const (
	EnvServer       = "POLYBOT_MASTODON_SERVER"
	EnvAccessToken  = "POLYBOT_MASTODON_ACCESS_TOKEN"
	EnvClientID     = "POLYBOT_MASTODON_CLIENT_ID"
	EnvClientSecret = "POLYBOT_MASTODON_CLIENT_SECRET"

	Name           = "mastodon"
	requestTimeout = 30 * time.Second
)

// DefaultProfile holds the limits of a stock Mastodon server. Auth replaces
// them with what the instance advertises.
var DefaultProfile = polybot.Profile{
	MaxTextLength:    500,
	MaxImageBytes:    16 * 1024 * 1024,
	MaxImagesPerPost: 4,
	ImageTypes:       []string{polybot.MIMEJPEG, polybot.MIMEPNG, polybot.MIMEGIF, polybot.MIMEWebP},
}

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string `yaml:"server"`
	AccessToken  string `yaml:"access_token"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
}

// Client wraps the Mastodon API client with polybot semantics.
type Client struct {
	client  *mastodonapi.Client
	server  string
	profile polybot.Profile
	account string
}

// EnvConfigured reports whether a Mastodon server or token is set in the environment.
func EnvConfigured() bool {
	return strings.TrimSpace(os.Getenv(EnvServer)) != "" || strings.TrimSpace(os.Getenv(EnvAccessToken)) != ""
}

// New constructs a Mastodon service. Environment variables take precedence
// over base.
func New(ctx context.Context, base Config) (*Client, error) {
	cfg, err := loadConfig(base)
	if err != nil {
		return nil, err
	}

	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout

	return &Client{client: mastodonClient, server: cfg.Server, profile: DefaultProfile}, nil
}

// Name identifies the service.
func (c *Client) Name() string { return Name }

// Profile returns the instance limits.
func (c *Client) Profile() polybot.Profile { return c.profile }

// Account returns the authenticated account once Auth succeeded.
func (c *Client) Account() string { return c.account }

// Auth verifies the access token and refreshes the limits from the
// instance's metadata. A failed metadata lookup keeps the defaults.
func (c *Client) Auth(ctx context.Context) error {
	account, err := c.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return wrapError(fmt.Errorf("verify credentials: %w", err))
	}
	c.account = account.Acct
	logutil.Infof("connected to %s as @%s", c.server, c.account)

	profile, err := FetchProfile(ctx, newHTTPClient(), c.server, DefaultProfile)
	if err != nil {
		logutil.Warnf("mastodon: using default limits: %v", err)
		return nil
	}
	c.profile = profile
	logutil.Debugf("mastodon limits: %d chars, %d images, %d bytes per image",
		profile.MaxTextLength, profile.MaxImagesPerPost, profile.MaxImageBytes)
	return nil
}

// Publish posts a status, uploading its images first.
func (c *Client) Publish(ctx context.Context, post polybot.Post) (polybot.PostRef, error) {
	var mediaIDs []mastodonapi.ID
	for _, img := range post.Images {
		attachment, err := c.uploadMedia(ctx, img)
		if err != nil {
			return polybot.PostRef{}, err
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	toot := &mastodonapi.Toot{
		Status:   post.Text,
		MediaIDs: mediaIDs,
	}
	if post.ReplyTo != nil && post.ReplyTo.ID != "" {
		toot.InReplyToID = mastodonapi.ID(post.ReplyTo.ID)
	}

	status, err := c.client.PostStatus(ctx, toot)
	if err != nil {
		return polybot.PostRef{}, wrapError(fmt.Errorf("post status: %w", err))
	}
	logutil.Debugf("status posted: %s", status.URL)

	return polybot.PostRef{ID: string(status.ID)}, nil
}

func (c *Client) uploadMedia(ctx context.Context, img polybot.Image) (*mastodonapi.Attachment, error) {
	logutil.Debugf("uploading media: %s", img)
	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        bytes.NewReader(img.Data),
		Description: img.Description,
	})
	if err != nil {
		return nil, wrapError(fmt.Errorf("upload media: %w", err))
	}
	return attachment, nil
}

func loadConfig(base Config) (Config, error) {
	cfg := Config{
		Server:       normalizeServer(envOr(EnvServer, base.Server)),
		AccessToken:  envOr(EnvAccessToken, base.AccessToken),
		ClientID:     envOr(EnvClientID, base.ClientID),
		ClientSecret: envOr(EnvClientSecret, base.ClientSecret),
	}

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, EnvServer)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, EnvAccessToken)
	}

	if len(missing) > 0 {
		return Config{}, polybot.MissingConfigError{Service: Name, Variables: missing}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

// normalizeServer accepts bare host names and strips trailing slashes.
func normalizeServer(server string) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server != "" && !strings.Contains(server, "://") {
		server = "https://" + server
	}
	return server
}

func wrapError(err error) error {
	return &polybot.ServiceError{Service: Name, Temporary: temporary(err), Err: err}
}

func temporary(err error) bool {
	var apiErr *mastodonapi.APIError
	if errors.As(err, &apiErr) {
		return polybot.TemporaryStatus(apiErr.StatusCode)
	}
	return errors.Is(err, context.DeadlineExceeded)
}
