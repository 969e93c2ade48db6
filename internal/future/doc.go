// Package future provides the promise/future primitives that the rest of the
// application is built on.
//
// A Future is a value that may not have finished computing yet. Futures come
// in two flavors: eager futures (created with [Go]) begin executing the
// moment they are created, while lazy futures (created with [Lazy]) do not
// run until something demands them, by awaiting them, starting them, or
// entering them into a race. The distinction matters when racing: an eager
// call has already done its work by the time the race begins, a lazy one
// starts inside the race.
//
// Any function can await a future with [Future.Await]; there is no
// async/sync split. [Race] settles with the first future to settle, success
// or failure alike, and cancels the losers without waiting for them to
// unwind. [All] awaits every future and fails fast on the first error.
package future
