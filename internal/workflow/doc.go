// Package workflow drives projects through the content pipeline.
//
// The Manager runs the fixed stage sequence (Ingest, Transcribe, Analyze,
// GenerateVideoAssets, GenerateTextAssets, Finalize) for one project at a
// time per goroutine. Each project run holds an in-process lock and a
// durable run claim in the project store, refreshed by a heartbeat, so a
// project never has two concurrent runs. Progress is persisted through the
// progress.Tracker at stage boundaries only; a run resumes at the stage after
// the last recorded checkpoint.
//
// In daemon mode Start polls the store for runnable projects, reclaims
// claims whose heartbeat expired, and runs up to
// workflow.max_concurrent_projects projects in parallel. Stage outcomes feed
// structured logs, Prometheus metrics and lifecycle notifications.
package workflow
