// Package gitrepo answers the version-control questions the pipeline needs:
// which tags exist, which commits landed between two tags, and which GitHub
// repository the working copy points at. It uses the go-git library so no git
// CLI installation is required.
package gitrepo

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoTags is returned when the repository has no tags at all.
var ErrNoTags = errors.New("repository has no tags")

// ErrNoRemote is returned when the origin remote is missing or does not point
// at a recognizable GitHub repository.
var ErrNoRemote = errors.New("could not resolve GitHub owner/repo from origin remote")

// Tag is a tag name paired with the committer date of the commit it resolves
// to. Annotated tags are peeled to their target commit first.
type Tag struct {
	Name string
	When time.Time
}

// Repository wraps an opened working copy.
type Repository struct {
	repo *git.Repository
}

// Open opens the repository at path, walking up the directory tree to find
// the .git directory the same way the git CLI does.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}
	return &Repository{repo: repo}, nil
}

// Tags returns all tags ordered oldest to newest by the committer date of the
// tagged commit. Lightweight and annotated tags are treated alike; tags that
// do not resolve to a commit (e.g. tagged trees) are skipped.
func (r *Repository) Tags() ([]Tag, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		commit, err := r.peelToCommit(ref.Hash())
		if err != nil {
			return nil
		}
		tags = append(tags, Tag{Name: ref.Name().Short(), When: commit.Committer.When})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	if len(tags) == 0 {
		return nil, ErrNoTags
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].When.Before(tags[j].When) })
	return tags, nil
}

// PreviousTag returns the tag immediately preceding target in commit-date
// order, or ok=false when target is the oldest tag.
func PreviousTag(tags []Tag, target string) (Tag, bool) {
	for i, t := range tags {
		if t.Name == target {
			if i == 0 {
				return Tag{}, false
			}
			return tags[i-1], true
		}
	}
	return Tag{}, false
}

// Subjects returns the subject lines of the commits reachable from the "to"
// tag but not from the "from" tag, newest first: the equivalent of
// `git log from..to --pretty=%s`.
func (r *Repository) Subjects(fromTag, toTag string) ([]string, error) {
	fromCommit, err := r.tagCommit(fromTag)
	if err != nil {
		return nil, err
	}
	toCommit, err := r.tagCommit(toTag)
	if err != nil {
		return nil, err
	}

	// Everything reachable from the "from" tag is excluded, matching the
	// semantics of `git log from..to`.
	reachable := make(map[plumbing.Hash]struct{})
	fromIter, err := r.repo.Log(&git.LogOptions{From: fromCommit.Hash})
	if err != nil {
		return nil, fmt.Errorf("walking history from %s: %w", fromTag, err)
	}
	err = fromIter.ForEach(func(c *object.Commit) error {
		reachable[c.Hash] = struct{}{}
		return nil
	})
	fromIter.Close()
	if err != nil {
		return nil, fmt.Errorf("collecting ancestors of %s: %w", fromTag, err)
	}

	toIter, err := r.repo.Log(&git.LogOptions{From: toCommit.Hash})
	if err != nil {
		return nil, fmt.Errorf("walking history from %s: %w", toTag, err)
	}
	defer toIter.Close()

	var subjects []string
	err = toIter.ForEach(func(c *object.Commit) error {
		if _, ok := reachable[c.Hash]; ok {
			return nil
		}
		subjects = append(subjects, firstLine(c.Message))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting commits %s..%s: %w", fromTag, toTag, err)
	}
	return subjects, nil
}

// OwnerRepo parses the origin remote URL into a GitHub owner and repository
// name. Both SSH and HTTPS remote forms are understood.
func (r *Repository) OwnerRepo() (owner, repo string, err error) {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNoRemote, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", ErrNoRemote
	}
	m := remotePattern.FindStringSubmatch(urls[0])
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrNoRemote, urls[0])
	}
	return m[1], m[2], nil
}

func (r *Repository) tagCommit(name string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewTagReferenceName(name), true)
	if err != nil {
		return nil, fmt.Errorf("resolving tag %s: %w", name, err)
	}
	commit, err := r.peelToCommit(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("resolving tag %s to a commit: %w", name, err)
	}
	return commit, nil
}

// peelToCommit resolves a hash to a commit, unwrapping annotated tag objects.
func (r *Repository) peelToCommit(hash plumbing.Hash) (*object.Commit, error) {
	if commit, err := r.repo.CommitObject(hash); err == nil {
		return commit, nil
	}
	tag, err := r.repo.TagObject(hash)
	if err != nil {
		return nil, fmt.Errorf("object %s is neither commit nor tag: %w", hash, err)
	}
	return tag.Commit()
}

// remotePattern matches git@github.com:owner/repo.git and
// https://github.com/owner/repo(.git) remote URLs.
var remotePattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+?)(?:\.git)?/?$`)

// mergePattern extracts the PR number from GitHub merge commit subjects.
var mergePattern = regexp.MustCompile(`^Merge pull request #(\d+)`)

// PullRequestNumbers extracts the merged pull request numbers referenced by
// commit subject lines, in first-seen order with duplicates removed.
func PullRequestNumbers(subjects []string) []int {
	seen := make(map[int]struct{})
	var numbers []int
	for _, subject := range subjects {
		m := mergePattern.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
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

func firstLine(message string) string {
	for i := 0; i < len(message); i++ {
		if message[i] == '\n' {
			return message[:i]
		}
	}
	return message
}
