// Package notify implements executor.EventSink and wires into
// breaker.Fabric's onOpen hook over Slack, best-effort: a send failure is
// logged and swallowed, never propagated to the caller.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/pipelineguard/remediator/pkg/executor"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Sink posts breaker-open and terminal-execution notifications to a Slack
// incoming webhook.
type Sink struct {
	webhookURL string
	channel    string
	log        *logrus.Entry
}

// New builds a Sink around a Slack incoming webhook URL. channel, if set,
// overrides the webhook's configured default channel.
func New(webhookURL, channel string, log *logrus.Entry) *Sink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sink{webhookURL: webhookURL, channel: channel, log: log}
}

// Emit posts a message for every terminal execution result, success and
// failure alike, so the channel carries a complete remediation timeline.
func (s *Sink) Emit(ctx context.Context, event executor.Event) error {
	icon := ":white_check_mark:"
	if !event.Result.Success {
		icon = ":x:"
	}
	text := fmt.Sprintf("%s *%s* (ticket `%s`): %s in %.1fs, %d attempt(s)",
		icon, event.ErrorType, event.TicketID, event.Result.Message, event.Result.ExecutionTimeSeconds, event.Result.Attempts)

	s.post(ctx, text)
	return nil
}

// OnBreakerOpen is wired as breaker.Fabric's onOpen callback: it fires a
// dedicated alert whenever a key trips open, independent of the terminal
// Emit for the execution that tripped it.
func (s *Sink) OnBreakerOpen(key string) {
	s.post(context.Background(), fmt.Sprintf(":warning: circuit breaker opened for `%s`", key))
}

func (s *Sink) post(ctx context.Context, text string) {
	msg := &slack.WebhookMessage{Text: text}
	if s.channel != "" {
		msg.Channel = s.channel
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		s.log.WithFields(logging.NewFields().Component("notify").Error(err).ToLogrus()).
			Warn("failed to post slack message")
	}
}
