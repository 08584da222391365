package notify_test

import (
	"context"
	"errors"
	"testing"

	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/trail/internal/domain"
	"github.com/opencampus/trail/internal/notify"
)

type mockSlackAPI struct {
	channel string
	calls   int
	err     error
}

func (m *mockSlackAPI) PostMessageContext(_ context.Context, channelID string, _ ...slacklib.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1724830000.000100", nil
}

func TestAlert(t *testing.T) {
	t.Parallel()

	event := &domain.AuditEvent{
		Category: domain.CategoryAuthentication,
		Action:   "login_failure",
		Details:  "Failed login attempt for dana@example.edu",
		Status:   domain.StatusFailure,
	}

	t.Run("posts_to_configured_channel", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{}
		alerter := notify.NewSlackAlerter(api, "C0SECURITY")

		require.NoError(t, alerter.Alert(context.Background(), event))
		assert.Equal(t, 1, api.calls)
		assert.Equal(t, "C0SECURITY", api.channel)
	})

	t.Run("wraps_api_error", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{err: errors.New("channel_not_found")}
		alerter := notify.NewSlackAlerter(api, "C0SECURITY")

		err := alerter.Alert(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notify.SlackAlerter.Alert")
	})
}
