package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/internal/logutil"
)

const (
	EnvAPIKey       = "POLYBOT_TWITTER_CONSUMER_KEY"
	EnvAPISecret    = "POLYBOT_TWITTER_CONSUMER_SECRET"
	EnvAccessToken  = "POLYBOT_TWITTER_ACCESS_TOKEN"
	EnvAccessSecret = "POLYBOT_TWITTER_ACCESS_TOKEN_SECRET"

	Name = "twitter"

	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"
)

var (
	httpTimeout = 30 * time.Second
	// transport carries every API request; nil means http.DefaultTransport.
	transport http.RoundTripper
)

// DefaultProfile holds the limits of X for a regular account.
var DefaultProfile = polybot.Profile{
	MaxTextLength:    280,
	MaxImageBytes:    5 * 1024 * 1024,
	MaxImagesPerPost: 4,
	ImageTypes:       []string{polybot.MIMEJPEG, polybot.MIMEPNG, polybot.MIMEGIF, polybot.MIMEWebP},
}

// Config captures the credentials required for OAuth 1.0a user-context requests.
type Config struct {
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	AccessToken  string `yaml:"access_token"`
	AccessSecret string `yaml:"access_secret"`
}

// Client implements polybot.Service for X (Twitter).
type Client struct {
	api      *gotwi.Client
	username string
}

// EnvConfigured reports whether any Twitter credential is set in the environment.
func EnvConfigured() bool {
	for _, key := range []string{EnvAPIKey, EnvAPISecret, EnvAccessToken, EnvAccessSecret} {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return true
		}
	}
	return false
}

// New constructs a Twitter service using gotwi and OAuth 1.0a credentials.
// Environment variables take precedence over base.
func New(ctx context.Context, base Config) (*Client, error) {
	cfg, err := loadConfig(base)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: httpTimeout, Transport: transport}
	debugEnabled := os.Getenv("POLYBOT_TWITTER_DEBUG") == "1" || logutil.Verbose()

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           httpClient,
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cfg.AccessToken,
		OAuthTokenSecret:     cfg.AccessSecret,
		APIKey:               cfg.APIKey,
		APIKeySecret:         cfg.APISecret,
		Debug:                debugEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}

	if !client.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	return &Client{api: client}, nil
}

// Name returns the service identifier.
func (c *Client) Name() string { return Name }

// Profile returns the limits of X.
func (c *Client) Profile() polybot.Profile { return DefaultProfile }

// Username returns the authenticated handle once Auth succeeded.
func (c *Client) Username() string { return c.username }

// Auth checks the credentials by looking up the authenticated user.
func (c *Client) Auth(ctx context.Context) error {
	res, err := userlookup.GetMe(ctx, c.api, &userlookuptypes.GetMeInput{})
	if err != nil {
		return wrapError(fmt.Errorf("verify credentials: %w", unwrapGotwiError(err)), err)
	}
	c.username = gotwi.StringValue(res.Data.Username)
	logutil.Infof("connected to X as @%s", c.username)
	return nil
}

// Publish posts the text (and optional media) to X.
func (c *Client) Publish(ctx context.Context, post polybot.Post) (polybot.PostRef, error) {
	var mediaIDs []string
	for i, img := range post.Images {
		logutil.Debugf("uploading media %d: %s", i+1, img)
		mediaID, err := c.uploadMedia(ctx, img)
		if err != nil {
			return polybot.PostRef{}, wrapError(err, err)
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(post.Text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}
	if post.ReplyTo != nil && post.ReplyTo.ID != "" {
		input.Reply = &managetweettypes.CreateInputReply{InReplyToTweetID: post.ReplyTo.ID}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	res, err := managetweet.Create(ctx, c.api, input)
	if err != nil {
		return polybot.PostRef{}, wrapError(fmt.Errorf("post tweet: %w", unwrapGotwiError(err)), err)
	}
	id := gotwi.StringValue(res.Data.ID)
	logutil.Debugf("tweet posted successfully: id=%s", id)

	return polybot.PostRef{ID: id}, nil
}

func (c *Client) uploadMedia(ctx context.Context, img polybot.Image) (string, error) {
	mediaType, category, err := resolveMediaType(img.MIMEType)
	if err != nil {
		return "", err
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, len(img.Data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(img.Data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID
	logutil.Debugf("initialize complete: media_id=%s", mediaID)

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(img.Data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	logutil.Debugf("append upload: media_id=%s segment=0", mediaID)
	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	logutil.Debugf("finalize state=%s media_id=%s", state, mediaID)
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		// Still images finish quickly; one wait is enough.
		wait := time.Duration(finalizeRes.Data.ProcessingInfo.CheckAfterSecs) * time.Second
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	if alt := strings.TrimSpace(img.Description); alt != "" {
		logutil.Debugf("setting alt text: media_id=%s", mediaID)
		if err := c.setAltText(ctx, mediaID, alt); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func (c *Client) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := c.api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", unwrapGotwiError(err))
	}
	return nil
}

func loadConfig(base Config) (Config, error) {
	cfg := Config{
		APIKey:       envOr(EnvAPIKey, base.APIKey),
		APISecret:    envOr(EnvAPISecret, base.APISecret),
		AccessToken:  envOr(EnvAccessToken, base.AccessToken),
		AccessSecret: envOr(EnvAccessSecret, base.AccessSecret),
	}

	var missing []string
	if cfg.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if cfg.APISecret == "" {
		missing = append(missing, EnvAPISecret)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, EnvAccessToken)
	}
	if cfg.AccessSecret == "" {
		missing = append(missing, EnvAccessSecret)
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

func resolveMediaType(mimeType string) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	switch mimeType {
	case polybot.MIMEJPEG:
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case polybot.MIMEPNG:
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case polybot.MIMEGIF:
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case polybot.MIMEWebP:
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}
	return "", "", polybot.ValidationError{Service: Name, Reason: fmt.Sprintf("unsupported image type %q", mimeType)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, fmt.Sprintf("%s", *pe.ResourceType))
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

// wrapError classifies err as a ServiceError; cause is the raw error from
// gotwi, inspected for its HTTP status.
func wrapError(err, cause error) error {
	var svcErr *polybot.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	var validation polybot.ValidationError
	if errors.As(err, &validation) {
		return err
	}
	return &polybot.ServiceError{Service: Name, Temporary: temporary(cause), Err: err}
}

func temporary(err error) bool {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return polybot.TemporaryStatus(gwErr.StatusCode)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return errors.New(summarizeGotwiError(gwErr))
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}

type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *metadataParameters) AccessToken() string {
	return p.accessToken
}

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *metadataParameters) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }
