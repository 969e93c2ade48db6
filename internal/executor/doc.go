// Package executor runs a built graph with a pool of workers. Steps and
// resources execute through reflection-invoked handlers; race nodes demand
// their candidates and settle with the first finisher, canceling the rest.
package executor
