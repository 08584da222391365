// Package notify forwards failure-status security events to an out-of-band
// sink so operators hear about repeated login failures or system faults
// without polling the trail.
package notify

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/opencampus/trail/internal/domain"
)

// SlackAPI abstracts the subset of the Slack client used by SlackAlerter.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackAlerter posts a one-line summary of a security event to a channel.
type SlackAlerter struct {
	api     SlackAPI
	channel string
}

func NewSlackAlerter(api SlackAPI, channel string) *SlackAlerter {
	return &SlackAlerter{api: api, channel: channel}
}

// Alert posts the event summary. Errors are returned for the caller to log;
// alerting is best effort and never blocks capture.
func (a *SlackAlerter) Alert(ctx context.Context, e *domain.AuditEvent) error {
	text := fmt.Sprintf(":rotating_light: [%s] %s — %s",
		domain.HumanizeAction(string(e.Category)),
		domain.HumanizeAction(e.Action),
		e.Details,
	)

	_, _, err := a.api.PostMessageContext(ctx, a.channel, slacklib.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify.SlackAlerter.Alert: %w", err)
	}
	return nil
}
