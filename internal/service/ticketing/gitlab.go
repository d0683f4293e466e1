package ticketing

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/concierge/internal/model"
)

var DefaultLabels = []string{"support", "escalation"}

type GitLabConfig struct {
	URL     string // Instance URL; empty means gitlab.com
	Token   string
	Project string // Numeric id or "group/project" path
	Labels  []string
}

type gitLabTicketing struct {
	client  *gitlab.Client
	project string
	labels  []string
}

func NewGitLabTicketing(cfg GitLabConfig) (Ticketing, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("gitlab project is required")
	}

	client, err := newClient(cfg.URL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	return &gitLabTicketing{
		client:  client,
		project: cfg.Project,
		labels:  labels,
	}, nil
}

func newClient(instanceURL, token string) (*gitlab.Client, error) {
	if instanceURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(instanceURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

// CreateTicket opens an issue and returns its web URL.
func (t *gitLabTicketing) CreateTicket(ctx context.Context, req model.TicketRequest) (string, error) {
	labels := make(gitlab.LabelOptions, 0, len(t.labels)+1)
	labels = append(labels, t.labels...)
	labels = append(labels, "priority::"+string(req.Priority))

	issue, _, err := t.client.Issues.CreateIssue(t.project, &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(issueTitle(req)),
		Description: gitlab.Ptr(issueDescription(req)),
		Labels:      &labels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating gitlab issue: %w", err)
	}

	if issue.WebURL != "" {
		return issue.WebURL, nil
	}
	return fmt.Sprintf("%s#%d", t.project, issue.IID), nil
}

func issueTitle(req model.TicketRequest) string {
	prefix := ""
	if req.Priority == model.PriorityUrgent {
		prefix = "[URGENT] "
	}
	return fmt.Sprintf("%sSupport escalation for conversation %d", prefix, req.ConversationID)
}

func issueDescription(req model.TicketRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Conversation:** %d\n", req.ConversationID)
	fmt.Fprintf(&sb, "**User:** %s\n", req.UserID)
	fmt.Fprintf(&sb, "**Priority:** %s\n", req.Priority)
	fmt.Fprintf(&sb, "**Reason:** %s\n", req.Reason)
	if req.TraceID != "" {
		fmt.Fprintf(&sb, "**Trace:** `%s`\n", req.TraceID)
	}
	if req.Excerpt != "" {
		sb.WriteString("\n### Customer message\n\n")
		for _, line := range strings.Split(req.Excerpt, "\n") {
			sb.WriteString("> ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
