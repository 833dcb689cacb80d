package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result pairs one requested identifier with its outcome. Exactly one of
// Record and Err is set.
type Result struct {
	ID     int
	Record *Record
	Err    error
}

// FetchBatch resolves identifiers strictly in input order, one at a time.
// Duplicates are permitted and resolved independently; after the first
// resolution of a duplicate the later occurrences hit the cache. A failure
// for one identifier is recorded in its slot and processing continues, so
// every identifier gets an answer.
//
// The context is checked between identifiers: a cancelled batch keeps the
// results accumulated so far and fills the remaining slots with Network
// failures wrapping the context error. An already-sent request is not
// recalled; its response is still cached when it arrives.
//
// Total wall-clock time is at least cacheMisses*minInterval plus
// cacheHits*orderingDelay, which is the price of never exceeding the
// source's request frequency.
func (c *Client) FetchBatch(ctx context.Context, ids []int) []Result {
	batchID := uuid.NewString()
	logger := c.logger.With().Str("batch_id", batchID).Logger()

	start := time.Now()
	results := make([]Result, 0, len(ids))
	failed := 0

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			logger.Warn().
				Int("resolved", i).
				Int("total", len(ids)).
				Msg("Batch cancelled")
			for _, rest := range ids[i:] {
				results = append(results, Result{
					ID:  rest,
					Err: &Error{ID: rest, Kind: KindNetwork, Message: "batch cancelled", Err: err},
				})
				failed++
			}
			break
		}

		rec, err := c.Fetch(ctx, id)
		if err != nil {
			failed++
			logger.Warn().Err(err).Int("id", id).Msg("Identifier failed")
		}
		results = append(results, Result{ID: id, Record: rec, Err: err})
	}

	logger.Info().
		Int("ids", len(ids)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results
}
