// Package core defines the domain model shared by the cipherd packages.
//
// # Overview
//
// The core package provides:
//   - LogRecord, the immutable unit of log ingestion and storage
//   - The fault taxonomy used by the ingestion pipeline and the query path
//
// Packages that produce or consume log records depend on core only; the
// ingestion pipeline, the storage layer and the HTTP API never import each
// other's concrete types through this package.
package core
