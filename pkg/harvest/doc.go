// Package harvest runs a crawl over a contiguous range of problem IDs.
//
// A dispatcher feeds IDs to a fixed pool of workers. Each worker fetches and
// validates the page, persists its assets and pauses for a randomized
// politeness delay. Outcomes are released to the index in submission order
// through a reorder buffer, whatever order the workers finish in.
//
// Cancelling the run context stops dispatch only. Problems already handed to
// a worker run to completion so no directory is left half written.
//
// Usage:
//
//	h, err := harvest.New(harvest.Deps{
//	    Fetcher: fetcher,
//	    Store:   store,
//	    Index:   writer,
//	    Pacer:   pacer,
//	    Logger:  logging.NewLogger("harvest"),
//	}, harvest.DefaultConfig())
//	summary, err := h.Run(ctx, 1, 3000)
package harvest
