// Package gateway provides clients for the external services the pipeline
// talks to: the GitHub API for pull request context and the OpenAI API for
// summarization.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

// ContextFetcher defines the behavior of a gateway that assembles the text
// context for a single pull request.
type ContextFetcher interface {
	PullRequestContext(ctx context.Context, owner, repo string, number int) (string, error)
}

// GitHubGateway is the concrete implementation of the ContextFetcher
// interface. It mixes the REST client (pull request, commits, files,
// comments) with the GraphQL client (linked issues).
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

// NewGitHubGateway builds a gateway whose HTTP transport injects the bearer
// token and sleeps through secondary rate limits instead of failing.
func NewGitHubGateway(token string, logger *log.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}, nil
}

// issueRefPattern finds bare #N references in a pull request body. Any
// hash-number reference counts, not just "fixes #N" style keywords, so
// "see also #12" collects issue 12 too.
var issueRefPattern = regexp.MustCompile(`#(\d+)`)

const separator = 80

// PullRequestContext flattens everything known about one pull request into a
// single text blob: title and body, commit messages, changed files, issue
// comments, and the bodies of issues referenced from the PR description.
func (g *GitHubGateway) PullRequestContext(ctx context.Context, owner, repo string, number int) (string, error) {
	g.logger.Printf("[pr #%d] fetching pull request context...", number)

	pr, _, err := g.restClient.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return "", fmt.Errorf("fetching pull request #%d: %w", number, err)
	}

	commits, _, err := g.restClient.PullRequests.ListCommits(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("listing commits for #%d: %w", number, err)
	}

	files, _, err := g.restClient.PullRequests.ListFiles(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("listing files for #%d: %w", number, err)
	}

	comments, _, err := g.restClient.Issues.ListComments(ctx, owner, repo, number, &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return "", fmt.Errorf("listing comments for #%d: %w", number, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", pr.GetTitle(), pr.GetBody())

	b.WriteString("Commits:\n")
	for _, c := range commits {
		fmt.Fprintf(&b, "%s\n", c.GetCommit().GetMessage())
	}
	b.WriteString("\n")

	b.WriteString("Files Changed:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "%s (%s)\n", f.GetFilename(), f.GetStatus())
	}
	b.WriteString("\n")

	b.WriteString("Comments:\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "%s: %s\n", c.GetUser().GetLogin(), c.GetBody())
	}
	b.WriteString("\n")

	b.WriteString("Linked Issues:\n")
	for _, issueNumber := range linkedIssueNumbers(pr.GetBody(), number) {
		g.appendIssue(ctx, &b, owner, repo, issueNumber)
	}
	b.WriteString(strings.Repeat("-", separator) + "\n")

	return b.String(), nil
}

// linkedIssueNumbers collects the distinct #N references in a PR body,
// skipping the PR's own number, in the order they appear.
func linkedIssueNumbers(body string, self int) []int {
	seen := map[int]struct{}{self: {}}
	var numbers []int
	for _, m := range issueRefPattern.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers
}

// linkedIssueQuery fetches one referenced issue with its discussion over
// GraphQL; a single query replaces three REST round trips.
type linkedIssueQuery struct {
	Repository struct {
		Issue struct {
			Title    githubv4.String
			Body     githubv4.String
			Comments struct {
				Nodes []struct {
					Author struct {
						Login githubv4.String
					}
					Body githubv4.String
				}
			} `graphql:"comments(first: 50)"`
		} `graphql:"issue(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// appendIssue writes one linked issue's title, body, and comments into the
// blob. A reference that does not resolve to an issue (it may be a PR, or
// point at nothing) is logged and skipped rather than failing the unit.
func (g *GitHubGateway) appendIssue(ctx context.Context, b *strings.Builder, owner, repo string, number int) {
	var q linkedIssueQuery
	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		g.logger.Printf("  skipping linked issue #%d: %v", number, err)
		return
	}

	fmt.Fprintf(b, "Issue #%d: %s\n%s\n\n", number, q.Repository.Issue.Title, q.Repository.Issue.Body)
	b.WriteString("Issue Comments:\n")
	for _, c := range q.Repository.Issue.Comments.Nodes {
		fmt.Fprintf(b, "%s: %s\n", c.Author.Login, c.Body)
	}
}
