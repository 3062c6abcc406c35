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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/blacktop/crosspub/internal/config"
	"github.com/blacktop/crosspub/internal/dispatch"
	"github.com/blacktop/crosspub/internal/logutil"
	"github.com/blacktop/crosspub/internal/xpost"
)

var (
	configPath string
	verbose    bool

	cfg config.Config
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().ExecuteContext(context.Background())
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crosspub",
		Short: "Publish to LinkedIn, X, Facebook, Instagram and TikTok",
		Long: "crosspub exchanges OAuth codes, resolves account identities and publishes " +
			"the same post, with an optional image or video, to several social platforms. " +
			"Run it as an HTTP API with `serve` or directly from the shell.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
		Example: `  crosspub post "Ship it!" --target x --target linkedin
  crosspub post --message "launch day" --video ./demo.mp4 --target tiktok
  crosspub whoami facebook
  crosspub serve --addr :3000`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default "+config.DefaultPath+" if present)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")

	cmd.AddCommand(
		newPostCommand(),
		newServeCommand(),
		newTokenCommand(),
		newWhoamiCommand(),
		newCompletionCommand(),
	)

	return cmd
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	logutil.SetFormat(cfg.LogFormat)
	logutil.SetVerbose(verbose || cfg.Verbose)
	logutil.Debugf("config loaded: env=%s poll_max_attempts=%d", cfg.Environment, cfg.Polling.MaxAttempts)
	return nil
}

// adapterFor returns the configured adapter for one platform.
func adapterFor(p xpost.Platform) (xpost.Adapter, error) {
	a, ok := lo.Find(dispatch.NewAdapters(cfg), func(a xpost.Adapter) bool { return a.Platform() == p })
	if !ok {
		return nil, fmt.Errorf("target %q is not implemented", p)
	}
	return a, nil
}

func platformArg(args []string) (xpost.Platform, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one platform (%s)", platformList())
	}
	return xpost.ParsePlatform(args[0])
}

func platformList() string {
	names := lo.Map(xpost.Platforms, func(p xpost.Platform, _ int) string { return string(p) })
	return strings.Join(names, ", ")
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
