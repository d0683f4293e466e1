package ticketing

import (
	"fmt"

	"basegraph.app/concierge/core/config"
	"basegraph.app/concierge/internal/store"
)

// NewProcessorFromConfig wires GitLab and, when configured, Slack into a
// Processor. It returns nil without error when GitLab is not configured.
func NewProcessorFromConfig(cfg config.TicketingConfig, conversations store.ConversationStore) (*Processor, error) {
	if !cfg.GitLabEnabled() {
		return nil, nil
	}

	tickets, err := NewGitLabTicketing(GitLabConfig{
		URL:     cfg.GitLabURL,
		Token:   cfg.GitLabToken,
		Project: cfg.GitLabProject,
		Labels:  cfg.GitLabLabels,
	})
	if err != nil {
		return nil, fmt.Errorf("gitlab ticketing: %w", err)
	}

	var notifier Notifier
	if cfg.SlackEnabled() {
		notifier, err = NewSlackNotifier(SlackConfig{
			Token:   cfg.SlackToken,
			Channel: cfg.SlackChannel,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
	}

	return NewProcessor(tickets, conversations, notifier), nil
}
