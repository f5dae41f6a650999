/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/spf13/cobra"

	"github.com/blacktop/polybot"
	"github.com/blacktop/polybot/bot"
)

var (
	messageFlag string
	imageFlags  []string
	altFlags    []string
	wrapFlag    bool
	opts        bot.Options
)

const (
	botName        = "polybot"
	defaultAltText = "Image attached via polybot"
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().ExecuteContext(context.Background())
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polybot [message]",
		Short: "Cross-post to social networks",
		Long: "polybot publishes the same update to Twitter/X, Mastodon, and Bluesky, " +
			"fitting the text and images to each network's limits. " +
			"Without --live it only shows what it would post.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  polybot --setup
  polybot --live --message "hello world" --image ./shot.png --alt-text "a screenshot"
  polybot --live "Ship it!" --target twitter --target mastodon
  polybot --live --wrap --image https://example.com/chart.png < release-notes.txt`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringArrayVar(&imageFlags, "image", nil, "Path or URL of an image to attach (repeatable)")
	cmd.Flags().StringArrayVar(&altFlags, "alt-text", nil, "Alternative text for the image at the same position (repeatable)")
	cmd.Flags().BoolVar(&wrapFlag, "wrap", false, "Split a long message into a thread instead of failing")
	opts.AddFlags(cmd.Flags())
	cmd.Flags().SortFlags = false

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate config directory: %w", err)
		}
		opts.ConfigDir = filepath.Join(dir, botName)
	}

	b := bot.New(botName, nil)
	b.In = cmd.InOrStdin()
	b.Out = cmd.OutOrStdout()

	if opts.Setup {
		return b.Run(ctx, opts)
	}

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	b.Main = func(ctx context.Context, b *bot.Bot) error {
		images, err := loadImages(ctx, imageFlags, altFlags)
		if err != nil {
			return err
		}
		req := polybot.NewRequest(message)
		req.Images = images
		req.Wrap = wrapFlag

		results := b.Post(ctx, req)
		out := cmd.OutOrStdout()
		for _, res := range results {
			switch {
			case res.Err != nil:
			case res.Skipped:
				fmt.Fprintf(out, "skipped %s\n", res.Service)
			default:
				last, _ := res.Last()
				fmt.Fprintf(out, "posted to %s: %s\n", res.Service, last.ID)
			}
		}
		return results.Err()
	}
	return b.Run(ctx, opts)
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		info, err := file.Stat()
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if (info.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			message = strings.TrimSpace(string(data))
		}
	}

	if message == "" {
		return "", errors.New("message is required")
	}

	return message, nil
}

// loadImages reads every --image source, fetching URLs (http, s3, git, ...)
// through go-getter. Alt texts pair up with images by position.
func loadImages(ctx context.Context, sources, alts []string) ([]polybot.Image, error) {
	if len(alts) > len(sources) {
		return nil, fmt.Errorf("%d --alt-text values for %d images", len(alts), len(sources))
	}
	if len(sources) == 0 {
		return nil, nil
	}

	tmp, err := os.MkdirTemp("", "polybot-images-")
	if err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	images := make([]polybot.Image, 0, len(sources))
	for i, src := range sources {
		alt := defaultAltText
		if i < len(alts) && strings.TrimSpace(alts[i]) != "" {
			alt = strings.TrimSpace(alts[i])
		}

		path := src
		if isRemote(src) {
			path = filepath.Join(tmp, fmt.Sprintf("image-%d", i))
			if err := getter.GetFile(path, src, getter.WithContext(ctx)); err != nil {
				return nil, fmt.Errorf("download %s: %w", src, err)
			}
		}
		img, err := polybot.LoadImage(path, alt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// isRemote reports whether src names something go-getter has to fetch
// rather than a local file.
func isRemote(src string) bool {
	if _, err := os.Stat(src); err == nil {
		return false
	}
	return strings.Contains(src, "::") || strings.Contains(src, "://")
}
