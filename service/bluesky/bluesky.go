package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/internal/logutil"
)

const (
	EnvHandle      = "POLYBOT_BLUESKY_HANDLE"
	EnvAppPassword = "POLYBOT_BLUESKY_APP_PASSWORD"
	EnvPDSURL      = "POLYBOT_BLUESKY_PDS_URL"

	Name           = "bluesky"
	DefaultPDSURL  = "https://bsky.social"
	postCollection = "app.bsky.feed.post"
	requestTimeout = 30 * time.Second
)

// DefaultProfile holds the limits of the Bluesky app view.
var DefaultProfile = polybot.Profile{
	MaxTextLength:    300,
	MaxImageBytes:    1_000_000,
	MaxImagesPerPost: 4,
	ImageTypes:       []string{polybot.MIMEJPEG, polybot.MIMEPNG},
}

// Config holds the account credentials. PDSURL defaults to bsky.social.
type Config struct {
	Handle      string `yaml:"handle"`
	AppPassword string `yaml:"app_password"`
	PDSURL      string `yaml:"pds_url,omitempty"`
}

// Client implements polybot.Service for Bluesky.
type Client struct {
	client   *xrpc.Client
	handle   string
	password string
}

// EnvConfigured reports whether a Bluesky handle or password is set in the environment.
func EnvConfigured() bool {
	return strings.TrimSpace(os.Getenv(EnvHandle)) != "" || strings.TrimSpace(os.Getenv(EnvAppPassword)) != ""
}

// New constructs a Bluesky service. No request is made until Auth.
func New(ctx context.Context, base Config) (*Client, error) {
	cfg, err := loadConfig(base)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	userAgent := "polybot/1"
	xrpcClient := &xrpc.Client{
		Client:    httpClient,
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	return &Client{client: xrpcClient, handle: cfg.Handle, password: cfg.AppPassword}, nil
}

// Name identifies the service.
func (c *Client) Name() string { return Name }

// Profile returns the limits of Bluesky.
func (c *Client) Profile() polybot.Profile { return DefaultProfile }

// Auth creates a session with the app password.
func (c *Client) Auth(ctx context.Context) error {
	session, err := atproto.ServerCreateSession(ctx, c.client, &atproto.ServerCreateSession_Input{
		Identifier: c.handle,
		Password:   c.password,
	})
	if err != nil {
		return wrapError(fmt.Errorf("login: %w", err))
	}

	c.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	logutil.Infof("connected to %s as @%s", c.client.Host, session.Handle)
	return nil
}

// Publish creates a post record with an optional image embed. Replies carry
// strong references to both the thread root and the direct parent.
func (c *Client) Publish(ctx context.Context, post polybot.Post) (polybot.PostRef, error) {
	if c.client.Auth == nil {
		return polybot.PostRef{}, &polybot.ServiceError{Service: Name, Err: errors.New("not authenticated")}
	}

	record := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      post.Text,
	}

	if len(post.Images) > 0 {
		images := make([]*bsky.EmbedImages_Image, 0, len(post.Images))
		for _, img := range post.Images {
			embed, err := c.uploadImage(ctx, img)
			if err != nil {
				return polybot.PostRef{}, err
			}
			images = append(images, embed)
		}
		record.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}

	var root *polybot.PostRef
	if parent := post.ReplyTo; parent != nil && parent.ID != "" {
		root = parent
		if parent.Root != nil {
			root = parent.Root
		}
		record.Reply = &bsky.FeedPost_ReplyRef{
			Root:   &atproto.RepoStrongRef{Uri: root.ID, Cid: root.CID},
			Parent: &atproto.RepoStrongRef{Uri: parent.ID, Cid: parent.CID},
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: record,
		},
	})
	if err != nil {
		return polybot.PostRef{}, wrapError(fmt.Errorf("create record: %w", err))
	}
	logutil.Debugf("post created: %s", out.Uri)

	ref := polybot.PostRef{ID: out.Uri, CID: out.Cid}
	if root != nil {
		ref.Root = &polybot.PostRef{ID: root.ID, CID: root.CID}
	}
	return ref, nil
}

func (c *Client) uploadImage(ctx context.Context, img polybot.Image) (*bsky.EmbedImages_Image, error) {
	logutil.Debugf("uploading blob: %s", img)
	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(img.Data))
	if err != nil {
		return nil, wrapError(fmt.Errorf("upload blob: %w", err))
	}
	if resp.Blob == nil {
		return nil, &polybot.ServiceError{Service: Name, Err: errors.New("upload blob: empty response")}
	}

	embed := &bsky.EmbedImages_Image{
		Alt:   img.Description,
		Image: resp.Blob,
	}
	if width, height, err := img.Size(); err == nil && width > 0 && height > 0 {
		embed.AspectRatio = &bsky.EmbedDefs_AspectRatio{Width: int64(width), Height: int64(height)}
	}
	return embed, nil
}

func loadConfig(base Config) (Config, error) {
	cfg := Config{
		Handle:      strings.TrimPrefix(envOr(EnvHandle, base.Handle), "@"),
		AppPassword: envOr(EnvAppPassword, base.AppPassword),
		PDSURL:      strings.TrimRight(envOr(EnvPDSURL, base.PDSURL), "/"),
	}
	if cfg.PDSURL == "" {
		cfg.PDSURL = DefaultPDSURL
	}

	var missing []string
	if cfg.Handle == "" {
		missing = append(missing, EnvHandle)
	}
	if cfg.AppPassword == "" {
		missing = append(missing, EnvAppPassword)
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

func wrapError(err error) error {
	return &polybot.ServiceError{Service: Name, Temporary: temporary(err), Err: err}
}

func temporary(err error) bool {
	var xrpcErr *xrpc.Error
	if errors.As(err, &xrpcErr) {
		return polybot.TemporaryStatus(xrpcErr.StatusCode)
	}
	return errors.Is(err, context.DeadlineExceeded)
}
