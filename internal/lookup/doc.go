// Package lookup answers country directory queries.
//
// An Orchestrator validates the query, turns it into a criterion key, and
// coordinates with the crawl engine through a shared result store: the first
// caller for a key dispatches a crawl task, concurrent callers for the same
// key join it, and every caller polls the store until the task's completion
// handler resolves the entry or the lookup budget runs out. A resolved entry
// is consumed by the first caller that reads it.
package lookup
