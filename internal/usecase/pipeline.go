package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/saito-wk/changemoji/internal/domain"
	"github.com/saito-wk/changemoji/internal/gateway"
	"golang.org/x/sync/errgroup"
)

// ErrInconsistentBatch is returned when reconciliation changed which pull
// requests are represented. Emitting either batch would misrepresent the
// release, so the run produces no changelog.
var ErrInconsistentBatch = errors.New("reconciled batch does not cover the same pull requests as the original")

// Pipeline drives the fan-out/fan-in: concurrent per-PR context fetch and
// summarization, then the single reconciliation pass, then the gate.
type Pipeline struct {
	fetcher     gateway.ContextFetcher
	summarizer  *Summarizer
	reconciler  *Reconciler
	logger      *log.Logger
	parallelism int
}

// NewPipeline creates a new Pipeline instance. parallelism bounds how many
// pull requests are processed concurrently.
func NewPipeline(fetcher gateway.ContextFetcher, summarizer *Summarizer, reconciler *Reconciler, logger *log.Logger, parallelism int) *Pipeline {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pipeline{
		fetcher:     fetcher,
		summarizer:  summarizer,
		reconciler:  reconciler,
		logger:      logger,
		parallelism: parallelism,
	}
}

// Run processes every pull request number and returns the final batch.
//
// Each PR runs as an independent unit writing into its own result slot, so
// accumulation needs no locking and one unit's failure cannot cancel or delay
// its siblings; a unit that exhausts its retries simply contributes nothing.
// After the join barrier the batch goes through exactly one reconciliation
// call sequence; a failed reconciliation falls back to the original batch,
// while an inconsistent one aborts the run.
func (p *Pipeline) Run(ctx context.Context, owner, repo string, numbers []int) (domain.Batch, error) {
	p.logger.Printf("summarizing %d pull requests...", len(numbers))

	slots := make([]*domain.Summary, len(numbers))
	var eg errgroup.Group
	eg.SetLimit(p.parallelism)

	for i, number := range numbers {
		i, number := i, number
		eg.Go(func() error {
			blob, err := withRetry(ctx, p.logger, fmt.Sprintf("fetch context for pr #%d", number), func(ctx context.Context) (string, error) {
				return p.fetcher.PullRequestContext(ctx, owner, repo, number)
			})
			if err != nil {
				p.logger.Printf("dropping pr #%d: %v", number, err)
				return nil
			}
			summary, err := p.summarizer.Summarize(ctx, number, blob)
			if err != nil {
				p.logger.Printf("dropping pr #%d: %v", number, err)
				return nil
			}
			slots[i] = &summary
			return nil
		})
	}
	// Units never return errors; Wait is purely the join barrier.
	_ = eg.Wait()

	batch := make(domain.Batch, 0, len(numbers))
	for _, s := range slots {
		if s != nil {
			batch = append(batch, *s)
		}
	}

	// No summarizable PRs is not an error; the changelog is just empty.
	if len(batch) == 0 {
		p.logger.Println("no pull requests could be summarized")
		return batch, nil
	}

	reconciled, err := p.reconciler.Reconcile(ctx, batch)
	if err != nil {
		p.logger.Printf("emoji reconciliation failed, keeping original emoji: %v", err)
		reconciled = nil
	}

	if !domain.Consistent(batch, reconciled) {
		return nil, ErrInconsistentBatch
	}

	if reconciled != nil {
		return reconciled, nil
	}
	return batch, nil
}
