package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// Options control one run of a bot.
type Options struct {
	// Live publishes for real. Without Live or Interactive the bot runs in
	// dry-run mode and only logs what it would post.
	Live bool
	// Interactive asks before publishing to each network.
	Interactive bool
	// Setup runs the account setup wizard instead of the bot.
	Setup bool
	// Profile selects an alternate config and state namespace.
	Profile string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Verbose turns on debug logging, overriding LogLevel.
	Verbose bool
	// ConfigDir holds the config and state files. Defaults to Bot.Path.
	ConfigDir string
	// Targets restricts the networks posted to. Empty means all configured.
	Targets []string
}

// AddFlags registers the bot's flags on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Live, "live", false, "Actually post updates. Without this flag, runs in dry-run mode")
	fs.BoolVar(&o.Interactive, "interactive", false, "Ask whether to actually post each update")
	fs.BoolVar(&o.Setup, "setup", false, "Configure accounts")
	fs.StringVar(&o.Profile, "profile", "", "Choose profile")
	fs.StringVar(&o.LogLevel, "loglevel", "info", "Set logging level (debug, info, warn, error)")
	fs.BoolVarP(&o.Verbose, "verbose", "V", false, "Enable verbose debug logging")
	fs.StringVar(&o.ConfigDir, "config-dir", "", "Directory holding config and state files")
	fs.StringSliceVar(&o.Targets, "target", nil, "Networks to post to (twitter, mastodon, bluesky, or all)")
}

// posting reports whether posts go out to the networks.
func (o Options) posting() bool {
	return o.Live || o.Interactive
}

var supportedTargets = map[string]struct{}{
	"bluesky":  {},
	"mastodon": {},
	"twitter":  {},
}

// normalizeTargets lower-cases, deduplicates and checks the target list. A
// nil result selects every network.
func normalizeTargets(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return nil, nil
		}
		if _, ok := supportedTargets[raw]; !ok {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}
	if len(result) == 0 {
		return nil, nil
	}
	sort.Strings(result)
	return result, nil
}
