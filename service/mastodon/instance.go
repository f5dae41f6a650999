package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	mastodonapi "github.com/mattn/go-mastodon"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/internal/logutil"
)

const (
	// RedirectOOB asks the server to display the authorization code instead
	// of redirecting.
	RedirectOOB = "urn:ietf:wg:oauth:2.0:oob"

	appName    = "polybot"
	appWebsite = "https://github.com/blacktop/polybot"
	appScopes  = "read:accounts write:statuses write:media"

	maxMetadataBytes = 1 << 20
)

var (
	retryMax     = 3
	retryWaitMin = 500 * time.Millisecond
	retryWaitMax = 5 * time.Second
)

// Software is what a server reports through nodeinfo.
type Software struct {
	Name    string
	Version string
}

// IsMastodon reports whether the server runs Mastodon itself rather than a
// compatible implementation.
func (s Software) IsMastodon() bool {
	return strings.EqualFold(s.Name, "mastodon")
}

func (s Software) String() string {
	if s.Version == "" {
		return s.Name
	}
	return s.Name + " " + s.Version
}

type instanceInfo struct {
	// Pleroma and glitch-soc report the text limit at the top level.
	MaxTootChars  int `json:"max_toot_chars"`
	Configuration struct {
		Statuses struct {
			MaxCharacters       int `json:"max_characters"`
			MaxMediaAttachments int `json:"max_media_attachments"`
		} `json:"statuses"`
		MediaAttachments struct {
			SupportedMIMETypes []string `json:"supported_mime_types"`
			ImageSizeLimit     int64    `json:"image_size_limit"`
			ImageMatrixLimit   int      `json:"image_matrix_limit"`
		} `json:"media_attachments"`
	} `json:"configuration"`
}

type nodeinfoIndex struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

type nodeinfo struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
}

func newHTTPClient() *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = logutil.Leveled{Prefix: Name}
	return client.StandardClient()
}

// FetchProfile reads /api/v1/instance and applies the advertised limits on
// top of base. Limits the server leaves out keep their base value.
func FetchProfile(ctx context.Context, client *http.Client, server string, base polybot.Profile) (polybot.Profile, error) {
	var info instanceInfo
	if err := getJSON(ctx, client, normalizeServer(server)+"/api/v1/instance", &info); err != nil {
		return base, fmt.Errorf("fetch instance metadata: %w", err)
	}

	p := base
	p.ImageTypes = append([]string(nil), base.ImageTypes...)
	switch {
	case info.Configuration.Statuses.MaxCharacters > 0:
		p.MaxTextLength = info.Configuration.Statuses.MaxCharacters
	case info.MaxTootChars > 0:
		p.MaxTextLength = info.MaxTootChars
	}
	if n := info.Configuration.Statuses.MaxMediaAttachments; n > 0 {
		p.MaxImagesPerPost = n
	}
	media := info.Configuration.MediaAttachments
	if media.ImageSizeLimit > 0 {
		p.MaxImageBytes = media.ImageSizeLimit
	}
	if media.ImageMatrixLimit > 0 {
		p.MaxImagePixels = media.ImageMatrixLimit
	}
	if len(media.SupportedMIMETypes) > 0 {
		p.ImageTypes = p.ImageTypes[:0]
		for _, t := range base.ImageTypes {
			for _, supported := range media.SupportedMIMETypes {
				if t == supported {
					p.ImageTypes = append(p.ImageTypes, t)
					break
				}
			}
		}
	}
	return p, nil
}

// DetectSoftware resolves the server's nodeinfo document.
func DetectSoftware(ctx context.Context, client *http.Client, server string) (Software, error) {
	var index nodeinfoIndex
	if err := getJSON(ctx, client, normalizeServer(server)+"/.well-known/nodeinfo", &index); err != nil {
		return Software{}, fmt.Errorf("fetch nodeinfo index: %w", err)
	}
	// The index lists one link per schema version; the last is the newest.
	href := ""
	for _, link := range index.Links {
		if strings.HasPrefix(link.Rel, "http://nodeinfo.diaspora.software/ns/schema/") {
			href = link.Href
		}
	}
	if href == "" {
		return Software{}, fmt.Errorf("no nodeinfo schema advertised by %s", server)
	}

	var info nodeinfo
	if err := getJSON(ctx, client, href, &info); err != nil {
		return Software{}, fmt.Errorf("fetch nodeinfo: %w", err)
	}
	return Software{Name: info.Software.Name, Version: info.Software.Version}, nil
}

// DetectServerSoftware runs DetectSoftware with the package's retrying client.
func DetectServerSoftware(ctx context.Context, server string) (Software, error) {
	return DetectSoftware(ctx, newHTTPClient(), server)
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &polybot.ServiceError{
			Service:   Name,
			Temporary: polybot.TemporaryStatus(resp.StatusCode),
			Err:       fmt.Errorf("GET %s: %s", url, resp.Status),
		}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// RegisterApp registers polybot as an OAuth application on server. The
// returned Config carries the client credentials; AuthURI is where the user
// authorizes the app.
func RegisterApp(ctx context.Context, server string) (cfg Config, authURI string, err error) {
	server = normalizeServer(server)
	app, err := mastodonapi.RegisterApp(ctx, &mastodonapi.AppConfig{
		Server:       server,
		ClientName:   appName,
		Scopes:       appScopes,
		Website:      appWebsite,
		RedirectURIs: RedirectOOB,
	})
	if err != nil {
		return Config{}, "", wrapError(fmt.Errorf("register app: %w", err))
	}
	return Config{Server: server, ClientID: app.ClientID, ClientSecret: app.ClientSecret}, app.AuthURI, nil
}

// ExchangeCode trades an authorization code for an access token.
func ExchangeCode(ctx context.Context, cfg Config, code string) (Config, error) {
	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       normalizeServer(cfg.Server),
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	client.Timeout = requestTimeout
	if err := client.AuthenticateToken(ctx, strings.TrimSpace(code), RedirectOOB); err != nil {
		return Config{}, wrapError(fmt.Errorf("exchange authorization code: %w", err))
	}
	cfg.Server = normalizeServer(cfg.Server)
	cfg.AccessToken = client.Config.AccessToken
	return cfg, nil
}
