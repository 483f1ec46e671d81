// Package ingest implements the asynchronous log pipeline.
//
// Producers call Pipeline.Emit from request goroutines. Records are buffered
// on an in-process FIFO queue and persisted one at a time by a single worker
// goroutine that owns the storage write connection. Shutdown enqueues a stop
// marker behind every pending record and waits for the worker to drain them.
package ingest
