// Package crawler implements the single-use crawl task that queries the
// country directory, together with the types shared by the crawl engine
// (queue items, completion handlers, fetcher and throttle contracts).
package crawler
