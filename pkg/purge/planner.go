// Package purge plans and executes bulk message deletion. The Bot API
// offers no way to ask for the newest message id in a chat, so the
// planner discovers the upper boundary by probing: exponential doubling
// from the start id until a probe fails, then binary search inside the
// bracket. The full range is then deleted in capped batches.
package purge

import (
	"context"

	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/telegram"
)

// Deleter is the slice of the chat API the planner needs
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int64) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error
}

// Result reports a completed purge. Counts cover the batch phase only;
// probe deletions are subsumed because batch deletion is idempotent on
// ids that are already gone.
type Result struct {
	Deleted int
	Failed  int
}

// Planner executes purges against a Deleter
type Planner struct {
	deleter Deleter
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewPlanner(deleter Deleter, logger *observability.Logger, metrics *observability.Metrics) *Planner {
	return &Planner{deleter: deleter, logger: logger, metrics: metrics}
}

// Purge deletes every message from fromID through the newest message in
// the chat. An empty range, where fromID itself no longer exists, yields
// a zero Result and no error.
func (p *Planner) Purge(ctx context.Context, chatID, fromID int64) (Result, error) {
	if !p.probe(ctx, chatID, fromID) {
		return Result{}, nil
	}

	boundary, err := p.findBoundary(ctx, chatID, fromID)
	if err != nil {
		return Result{}, err
	}

	p.logger.WithFields(map[string]any{
		"chat":     chatID,
		"from":     fromID,
		"boundary": boundary,
	}).Info("purge boundary located")

	res, err := p.deleteRange(ctx, chatID, fromID, boundary)
	if err != nil {
		return res, err
	}
	if p.metrics != nil {
		p.metrics.PurgeDeletedTotal.Add(float64(res.Deleted))
		p.metrics.PurgeFailedTotal.Add(float64(res.Failed))
	}
	return res, nil
}

// probe tests whether the message id exists by deleting it. A failed
// delete means the id is past the newest message or already gone.
func (p *Planner) probe(ctx context.Context, chatID, messageID int64) bool {
	if p.metrics != nil {
		p.metrics.PurgeProbesTotal.Inc()
	}
	return p.deleter.DeleteMessage(ctx, chatID, messageID) == nil
}

// findBoundary returns the greatest message id at or above fromID that
// still exists. fromID is known to exist when called.
func (p *Planner) findBoundary(ctx context.Context, chatID, fromID int64) (int64, error) {
	// double the offset until a probe misses
	var lo, hi int64 // offsets from fromID: lo hits, hi misses
	for step := int64(1); ; step *= 2 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if p.probe(ctx, chatID, fromID+step) {
			lo = step
			continue
		}
		hi = step
		break
	}

	// binary search the bracket for the last id that exists
	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		if p.probe(ctx, chatID, fromID+mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return fromID + lo, nil
}

// deleteRange removes every id in [fromID, toID] in batches no larger
// than the API cap. A failed batch is split and retried; ids that still
// fail alone are counted as failed and skipped.
func (p *Planner) deleteRange(ctx context.Context, chatID, fromID, toID int64) (Result, error) {
	ids := make([]int64, 0, toID-fromID+1)
	for id := fromID; id <= toID; id++ {
		ids = append(ids, id)
	}

	var res Result
	for start := 0; start < len(ids); start += telegram.MaxDeleteBatch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + telegram.MaxDeleteBatch
		if end > len(ids) {
			end = len(ids)
		}
		p.deleteBatch(ctx, chatID, ids[start:end], &res)
	}
	return res, nil
}

func (p *Planner) deleteBatch(ctx context.Context, chatID int64, batch []int64, res *Result) {
	if len(batch) == 0 || ctx.Err() != nil {
		return
	}
	if err := p.deleter.DeleteMessages(ctx, chatID, batch); err == nil {
		res.Deleted += len(batch)
		return
	}
	if len(batch) == 1 {
		p.logger.WithFields(map[string]any{
			"chat":    chatID,
			"message": batch[0],
		}).Warn("message could not be deleted")
		res.Failed++
		return
	}
	// shrink and retry both halves
	mid := len(batch) / 2
	p.deleteBatch(ctx, chatID, batch[:mid], res)
	p.deleteBatch(ctx, chatID, batch[mid:], res)
}
