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
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/crosspub/internal/config"
	"github.com/blacktop/crosspub/internal/dispatch"
	"github.com/blacktop/crosspub/internal/xpost"
)

var (
	messageFlag string
	imagePath   string
	videoPath   string
	pageIDFlag  string
	targetsFlag []string
	dryRun      bool
)

func newPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post [message]",
		Short: "Publish the same post to several platforms",
		Long: "post publishes one message, with an optional image or video, to every selected " +
			"platform at once. Access tokens are read from CROSSPUB_<PLATFORM>_ACCESS_TOKEN.",
		RunE: runPost,
		Example: `  crosspub post --message "hello world" --image ./shot.png
  crosspub post "Ship it!" --target x --target linkedin
  echo "Release shipped" | crosspub post --target all`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to an image to attach")
	cmd.Flags().StringVar(&videoPath, "video", "", "Path to a video to attach")
	cmd.Flags().StringVar(&pageIDFlag, "page-id", "", "Facebook Page to publish through (default first managed page)")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", []string{"all"}, "Targets to post to ("+platformList()+", or all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	return cmd
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	targets, err := normalizeTargets(targetsFlag)
	if err != nil {
		return err
	}

	media, err := loadMedia(imagePath, videoPath)
	if err != nil {
		return err
	}

	jobs, err := buildJobs(targets)
	if err != nil {
		return err
	}

	content := xpost.PostContent{Text: message, Media: media, PageID: pageIDFlag}
	return publishAll(ctx, jobs, content, cmd.OutOrStdout(), dryRun)
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

	if message == "" && imagePath == "" && videoPath == "" {
		return "", errors.New("message is required")
	}

	return message, nil
}

// normalizeTargets resolves names and aliases, drops duplicates and returns
// the platforms in their canonical order.
func normalizeTargets(values []string) ([]xpost.Platform, error) {
	if len(values) == 0 {
		return append([]xpost.Platform(nil), xpost.Platforms...), nil
	}

	selected := make([]xpost.Platform, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return append([]xpost.Platform(nil), xpost.Platforms...), nil
		}
		p, err := xpost.ParsePlatform(raw)
		if err != nil {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		selected = append(selected, p)
	}

	if len(selected) == 0 {
		return nil, errors.New("no targets selected")
	}

	selected = lo.Uniq(selected)
	return lo.Filter(xpost.Platforms, func(p xpost.Platform, _ int) bool {
		return lo.Contains(selected, p)
	}), nil
}

func loadMedia(image, video string) (*xpost.Media, error) {
	switch {
	case image != "" && video != "":
		return nil, errors.New("attach either --image or --video, not both")
	case image != "":
		return readMedia(xpost.MediaImage, image)
	case video != "":
		return readMedia(xpost.MediaVideo, video)
	}
	return nil, nil
}

func readMedia(kind xpost.MediaKind, path string) (*xpost.Media, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	if len(data) == 0 {
		return nil, xpost.ValidationError{Provider: "crosspub", Reason: path + " is empty"}
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	mimeType, _, _ = strings.Cut(mimeType, ";")
	if !strings.HasPrefix(mimeType, kind.String()+"/") {
		return nil, xpost.ValidationError{Provider: "crosspub", Reason: fmt.Sprintf("%s is %s, not a %s file", path, mimeType, kind)}
	}
	return &xpost.Media{Kind: kind, MIMEType: mimeType, Data: data}, nil
}

type job struct {
	adapter     xpost.Adapter
	accessToken string
}

func buildJobs(targets []xpost.Platform) ([]job, error) {
	adapters := dispatch.NewAdapters(cfg)

	jobs := make([]job, 0, len(targets))
	var errs []error
	for _, target := range targets {
		adapter, ok := lo.Find(adapters, func(a xpost.Adapter) bool { return a.Platform() == target })
		if !ok {
			errs = append(errs, fmt.Errorf("target %q is not implemented", target))
			continue
		}
		token, err := config.AccessToken(target)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		jobs = append(jobs, job{adapter: adapter, accessToken: token})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(jobs) == 0 {
		return nil, errors.New("no targets available")
	}
	return jobs, nil
}

// publishAll publishes to every target concurrently. One platform failing
// does not stop the others; every failure is reported.
func publishAll(ctx context.Context, jobs []job, content xpost.PostContent, out io.Writer, simulate bool) error {
	if simulate {
		for _, j := range jobs {
			fmt.Fprintf(out, "[dry-run] would post to %s: %q\n", j.adapter.Name(), content.Text)
		}
		if content.Media != nil {
			fmt.Fprintf(out, "[dry-run] %s: %s (%d bytes)\n", content.Media.Kind, content.Media.MIMEType, len(content.Media.Data))
		}
		return nil
	}

	var (
		mu   sync.Mutex
		errs = make([]error, len(jobs))
	)
	var g errgroup.Group
	for i, j := range jobs {
		g.Go(func() error {
			mu.Lock()
			fmt.Fprintf(out, "posting to %s...\n", j.adapter.Name())
			mu.Unlock()

			res, err := j.adapter.Publish(ctx, j.accessToken, content)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", j.adapter.Name(), err)
				return nil
			}
			fmt.Fprintf(out, "posted to %s: %s\n", j.adapter.Name(), res.ID)
			return nil
		})
	}
	// Goroutines record their failure in errs and never return one.
	g.Wait()

	return errors.Join(errs...)
}
