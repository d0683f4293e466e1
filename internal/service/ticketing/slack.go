package ticketing

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"basegraph.app/concierge/internal/model"
)

type SlackConfig struct {
	Token   string
	Channel string
	APIURL  string // Optional override, mostly for tests
}

type slackNotifier struct {
	client  *slack.Client
	channel string
}

func NewSlackNotifier(cfg SlackConfig) (Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}

	return &slackNotifier{
		client:  slack.New(cfg.Token, opts...),
		channel: cfg.Channel,
	}, nil
}

func (n *slackNotifier) NotifyEscalation(ctx context.Context, req model.TicketRequest, ticketID string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(notificationText(req, ticketID), false),
	)
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", n.channel, err)
	}
	return nil
}

func notificationText(req model.TicketRequest, ticketID string) string {
	icon := ":raising_hand:"
	if req.Priority == model.PriorityUrgent {
		icon = ":rotating_light:"
	}
	return fmt.Sprintf("%s *%s escalation* for conversation %d (user %s)\nReason: %s\nTicket: %s",
		icon, req.Priority, req.ConversationID, req.UserID, req.Reason, ticketID)
}
