package buildcache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nscaledev/spackcore/pkg/spec"
)

// PushJob is one spec to push through the pipeline.
type PushJob struct {
	Spec          *spec.Spec
	Tarball       TarballInfo
	SpecfileBytes []byte
}

// Pipeline runs the bounded, concurrent push/fetch pipeline of spec.md
// §4.9/§5: a worker pool (golang.org/x/sync/semaphore, generalizing
// cmd/retagger's errgroupCollector pattern to a fixed concurrency limit)
// submits one existence check per spec, then one build+upload task per
// spec whose tarball is absent or whose push is forced.
type Pipeline struct {
	Mirror      Mirror
	Concurrency int64 // worker pool size; defaults to 4 if <= 0
	Force       bool
	Signer      Signer
	UpdateIndex bool

	// existence is the per-mirror existence cache: an append-only map
	// from tarball digest hex to whether that tarball was pushed by this
	// Pipeline. It records no size or dag hash.
	existence sync.Map // map[string]bool, keyed by tarball digest hex
}

// pushOutcome pairs a job with its terminal PushResult, for the
// (skipped, failed) report spec.md §7 requires push errors to collect
// into rather than raise.
type pushOutcome struct {
	job    PushJob
	result PushResult
}

// PushAll pushes every job, respecting Concurrency, and returns the
// specs that completed (uploaded or skipped) and the specs that failed.
// Per spec.md §7's propagation policy, a single spec's failure never
// aborts the batch.
func (p *Pipeline) PushAll(ctx context.Context, jobs []PushJob) (succeeded, failed []PushResult, err error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := semaphore.NewWeighted(concurrency)

	var mu sync.Mutex
	var outcomes []pushOutcome
	var wg sync.WaitGroup

	for _, job := range jobs {
		job := job
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancellation: pending tasks abort before they start
			// (spec.md §5).
			mu.Lock()
			outcomes = append(outcomes, pushOutcome{job: job, result: PushResult{Spec: job.Spec, Err: err}})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			start := time.Now()
			result := p.pushOne(ctx, job)
			logrus.WithFields(logrus.Fields{
				"spec":     job.Spec.Name,
				"dag_hash": job.Spec.Hash,
				"verb":     "push",
				"state":    result.State.String(),
				"duration": time.Since(start),
			}).Info("buildcache: push task complete")
			mu.Lock()
			outcomes = append(outcomes, pushOutcome{job: job, result: result})
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.result.Err != nil {
			failed = append(failed, o.result)
		} else {
			succeeded = append(succeeded, o.result)
		}
	}

	if p.UpdateIndex && len(failed) < len(jobs) {
		start := time.Now()
		if _, idxErr := GenerateIndex(ctx, p.Mirror, GenerateIndexOptions{SkipErrors: true}); idxErr != nil {
			return succeeded, failed, errors.Wrap(idxErr, "regenerating index after push")
		}
		logrus.WithField("duration", time.Since(start)).Info("buildcache: index regenerated")
	}

	return succeeded, failed, nil
}

func (p *Pipeline) pushOne(ctx context.Context, job PushJob) PushResult {
	dgst := job.Tarball.Digest.Encoded()
	if !p.Force {
		if present, ok := p.existence.Load(dgst); ok && present.(bool) {
			return PushResult{Spec: job.Spec, State: PushSkipped}
		}
	}
	result := PushBinary(ctx, p.Mirror, job.Spec, job.Tarball, job.SpecfileBytes, PushOptions{Force: p.Force, Signer: p.Signer})
	if result.Err == nil {
		p.existence.Store(dgst, true)
	}
	return result
}
