package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	shared "github.com/fitglue/heatmap/pkg"
	infrapubsub "github.com/fitglue/heatmap/pkg/infrastructure/pubsub"
	"github.com/fitglue/heatmap/pkg/types"
)

const (
	eventSource           = "/heatmap/pipeline"
	eventTypeRepairResult = "com.fitglue.heatmap.repair.result"
)

// Locales the repair mails are written in; the first is the fallback.
var supportedLocales = []language.Tag{language.English, language.Ukrainian}

var localeMatcher = language.NewMatcher(supportedLocales)

// NormalizeLocale maps a user-supplied locale or Accept-Language value to a
// supported base language ("en" or "uk").
func NormalizeLocale(locale string) string {
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	_, idx, _ := localeMatcher.Match(tags...)
	base, _ := supportedLocales[idx].Base()
	return base.String()
}

// EventNotifier publishes repair results as CloudEvents.
type EventNotifier struct {
	Publisher shared.Publisher
	Topic     string
}

func (n *EventNotifier) NotifyRepairResult(ctx context.Context, ev types.RepairResultEvent) error {
	e, err := infrapubsub.NewCloudEvent(eventSource, eventTypeRepairResult, ev)
	if err != nil {
		return fmt.Errorf("build repair result event: %w", err)
	}
	if _, err := n.Publisher.PublishCloudEvent(ctx, n.Topic, e); err != nil {
		return fmt.Errorf("publish repair result: %w", err)
	}
	return nil
}
