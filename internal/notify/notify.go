// Package notify posts incident summaries to a code-review system.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/moolen/faultline/internal/logging"
)

// ErrInvalidTarget is returned for a malformed repository or change id.
var ErrInvalidTarget = errors.New("invalid notification target")

// Notifier posts a comment on a change request.
type Notifier interface {
	PostComment(ctx context.Context, repo, changeID, text string) error
}

// GitHubConfig configures the GitHub notifier.
type GitHubConfig struct {
	Token   string
	BaseURL string // GitHub Enterprise API root, empty for github.com
}

// GitHubNotifier comments on pull requests.
type GitHubNotifier struct {
	client *github.Client
	logger *logging.Logger
}

// NewGitHubNotifier returns nil without error when no token is configured,
// meaning notifications are disabled.
func NewGitHubNotifier(cfg GitHubConfig) (*GitHubNotifier, error) {
	if cfg.Token == "" {
		return nil, nil
	}
	client := github.NewClient(nil).WithAuthToken(cfg.Token)
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}
	return &GitHubNotifier{client: client, logger: logging.GetLogger("notify")}, nil
}

// PostComment implements Notifier. repo is "owner/name", changeID the PR number.
func (g *GitHubNotifier) PostComment(ctx context.Context, repo, changeID, text string) error {
	owner, name, number, err := ParseTarget(repo, changeID)
	if err != nil {
		return err
	}
	comment, _, err := g.client.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
		Body: github.Ptr(text),
	})
	if err != nil {
		return fmt.Errorf("github comment on %s#%d: %w", repo, number, err)
	}
	g.logger.Debug("Posted comment %d on %s#%d", comment.GetID(), repo, number)
	return nil
}

// ParseTarget splits "owner/name" and a numeric change id.
func ParseTarget(repo, changeID string) (owner, name string, number int, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", 0, fmt.Errorf("%w: repo %q", ErrInvalidTarget, repo)
	}
	number, err = strconv.Atoi(strings.TrimPrefix(changeID, "#"))
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("%w: change %q", ErrInvalidTarget, changeID)
	}
	return owner, name, number, nil
}
