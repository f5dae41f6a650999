package twitter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/blacktop/polybot"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvAPISecret, EnvAccessToken, EnvAccessSecret} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigMissing(t *testing.T) {
	clearEnv(t)
	_, err := loadConfig(Config{APIKey: "key"})
	var missing polybot.MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("loadConfig error = %v, want MissingConfigError", err)
	}
	want := []string{EnvAPISecret, EnvAccessToken, EnvAccessSecret}
	if !reflect.DeepEqual(missing.Variables, want) {
		t.Errorf("Variables = %v, want %v", missing.Variables, want)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, " from-env ")
	cfg, err := loadConfig(Config{APIKey: "from-file", APISecret: "s", AccessToken: "t", AccessSecret: "a"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "from-env")
	}
	if cfg.AccessSecret != "a" {
		t.Errorf("AccessSecret = %q, want file value", cfg.AccessSecret)
	}
}

func TestEnvConfigured(t *testing.T) {
	clearEnv(t)
	if EnvConfigured() {
		t.Error("EnvConfigured with empty environment")
	}
	t.Setenv(EnvAccessToken, "tok")
	if !EnvConfigured() {
		t.Error("EnvConfigured = false with a token set")
	}
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		mime     string
		want     uploadtypes.MediaType
		category uploadtypes.MediaCategory
	}{
		{polybot.MIMEJPEG, uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage},
		{polybot.MIMEPNG, uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage},
		{polybot.MIMEGIF, uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF},
		{polybot.MIMEWebP, uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, category, err := resolveMediaType(tt.mime)
			if err != nil {
				t.Fatalf("resolveMediaType: %v", err)
			}
			if got != tt.want || category != tt.category {
				t.Errorf("got %s/%s, want %s/%s", got, category, tt.want, tt.category)
			}
		})
	}

	var validation polybot.ValidationError
	if _, _, err := resolveMediaType("image/tiff"); !errors.As(err, &validation) {
		t.Errorf("resolveMediaType(tiff) error = %v, want ValidationError", err)
	}
}

func TestPartialError(t *testing.T) {
	if err := partialError(nil); err != nil {
		t.Errorf("partialError(nil) = %v", err)
	}
	detail, title := "bad media", "Invalid Request"
	err := partialError([]resources.PartialError{{Detail: &detail}, {Title: &title}})
	if err == nil || err.Error() != "bad media; Invalid Request" {
		t.Errorf("partialError = %v", err)
	}
	if err := partialError([]resources.PartialError{{}}); err == nil || err.Error() != "unknown error" {
		t.Errorf("partialError(empty entry) = %v", err)
	}
}

func TestProfile(t *testing.T) {
	p := (&Client{}).Profile()
	if p.MaxTextLength != 280 || p.MaxImagesPerPost != 4 {
		t.Errorf("Profile = %+v", p)
	}
	if !p.SupportsImageType(polybot.MIMEWebP) {
		t.Error("X accepts WebP uploads")
	}
}
