// Package core runs the two-phase import pipeline and the read façade over
// the relational and document stores.
//
// It is independent of any transport: the HTTP server and the sheetctl CLI
// both drive the same Service.
//
// # Import pipeline
//
// An import is staged before anything is written:
//
//  1. [Service.Preview] spools the upload to a temp file, parses it with the
//     reader registered for its extension and caches the rows as a Session.
//  2. [Service.Page] pages through the staged rows without touching a store.
//  3. [Service.Commit] takes the session out of the cache, infers the schema
//     from the first data row, and writes the rows in batches to the
//     relational store, the document store, or both in that order.
//  4. [Service.Cancel] takes the session out of the cache and writes nothing.
//
// Commit, cancel and expiry (see [Service.StartReaper]) are the terminal
// transitions. Each removes the session under the cache lock, so exactly
// one of two racing callers wins and the other gets ErrNotFound.
//
// # Failure semantics
//
// A commit to both stores reports each store separately in
// [CommitResult.Results]. A store whose target could not be created fails
// with SCH003; a failed batch fails with IMP003 and stops that store's
// remaining batches, keeping the batches already written.
//
// # Read façade
//
// [Service.ExportData], [Service.GetOrderedHeaders] and [Service.ListTargets]
// read either store through the same contract. Column order always comes
// from the metadata recorded at import time. Binary cells are returned as
// data URIs.
//
// # Error handling
//
// Technical errors are mapped to user-facing messages with [MapError]; the
// codes are listed in error_messages.go.
package core
