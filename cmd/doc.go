// Package cmd implements the countryd command line.
//
//	countryd serve                 run the HTTP API and the crawl engine
//	countryd lookup --name Poland  answer one query and print the records
package cmd
