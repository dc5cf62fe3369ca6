// Package notification sends import run results through shoutrrr services.
package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/importer"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// DefaultTimeout bounds a single send across all configured services.
const DefaultTimeout = 10 * time.Second

// Notifier posts a message when an import run finishes.
type Notifier struct {
	sender    *router.ServiceRouter
	onSuccess bool
	onFailure bool
	log       logger.Logger
}

// New builds a notifier from settings. With no URLs configured the notifier
// is returned disabled and RunFinished does nothing.
func New(settings *conf.NotifySettings, baseLog logger.Logger) (*Notifier, error) {
	if baseLog == nil {
		baseLog = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	n := &Notifier{log: baseLog.Module("notify")}
	if settings == nil {
		return n, nil
	}

	urls := slices.DeleteFunc(slices.Clone(settings.URLs), func(u string) bool {
		return strings.TrimSpace(u) == ""
	})
	if len(urls) == 0 {
		return n, nil
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// shoutrrr errors can echo the URL, tokens included
		return nil, errors.Newf("invalid notification url: %s", logger.RedactSensitiveData(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender.Timeout = DefaultTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	n.sender = sender
	n.onSuccess = settings.OnSuccess
	n.onFailure = settings.OnFailure
	return n, nil
}

// Enabled reports whether any service is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// RunFinished reports the outcome of a run. runErr nil means success.
func (n *Notifier) RunFinished(ctx context.Context, summary importer.RunSummary, runErr error) error {
	if !n.Enabled() {
		return nil
	}
	if runErr == nil && !n.onSuccess {
		return nil
	}
	if runErr != nil && !n.onFailure {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	title, body := FormatRun(summary, runErr)
	params := stypes.Params{}
	params.SetTitle(title)

	for _, err := range n.sender.Send(body, &params) {
		if err != nil {
			n.log.Warn("notification delivery failed",
				logger.String("error", logger.RedactSensitiveData(err.Error())))
			return errors.Newf("notification delivery failed: %s", logger.RedactSensitiveData(err.Error())).
				Component("notification").
				Category(errors.CategoryNetwork).
				Build()
		}
	}
	n.log.Debug("notification sent", logger.String("run_id", summary.RunID))
	return nil
}

// FormatRun renders the title and body of a run notification.
func FormatRun(summary importer.RunSummary, runErr error) (title, body string) {
	var b strings.Builder
	if runErr != nil {
		title = "Flarum import failed"
		fmt.Fprintf(&b, "Run %s failed after %s: %s\n", summary.RunID, summary.Duration.Round(time.Second),
			logger.RedactSensitiveData(runErr.Error()))
	} else {
		title = "Flarum import completed"
		fmt.Fprintf(&b, "Run %s completed in %s\n", summary.RunID, summary.Duration.Round(time.Second))
	}

	for _, s := range summary.Steps {
		fmt.Fprintf(&b, "%s: %d created, %d already mapped, %d skipped, %d failed (%d batches, %d skipped)\n",
			s.Step, s.Stats.Created, s.Stats.AlreadyMapped, s.Stats.Skipped, s.Stats.Failed, s.Batches, s.Gated)
	}
	return title, strings.TrimRight(b.String(), "\n")
}
