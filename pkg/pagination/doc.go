// Package pagination drives one partition (Jira project) through its
// result set, page by page, as an explicit state machine:
//
//	Fetching -> Mapping -> Writing -> (Fetching | Exhausted | Aborted)
//
// A page is committed by writing its records to the Sink and then
// persisting the advanced offset to the checkpoint Store. Progress is
// therefore only ever recorded for pages that are fully written, and a
// partition aborted by a terminal fetch error resumes from the last
// committed page on the next run.
//
// Example usage:
//
//	runner := pagination.NewRunner(jiraClient, sink, store, pagination.DefaultConfig(), logger)
//	outcome := runner.Run(ctx, "HADOOP")
//	if outcome.Aborted() {
//		log.Warn().Err(outcome.Err).Msg("partition incomplete")
//	}
//
// The runner:
//   - Starts at the partition's checkpointed offset
//   - Never lets the cumulative item count exceed the cap (default 10000)
//   - Requests min(page size, remaining cap) items per page
//   - Ends naturally on an empty page or once the offset reaches the total
//   - Uses the lower total when the server reports a shrinking result set
package pagination
