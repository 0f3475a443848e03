// Package ingest implements the first pipeline stage: it validates the
// project's source video and records the media handle later stages read.
//
// Validation is layered cheapest first: extension allow-list, file size,
// free scratch space, then an ffprobe inspection that requires a video and
// an audio stream with a positive duration. Rejections carry
// ErrUnsupportedFormat and fail the project immediately; filesystem read
// errors carry ErrFetchFailed and are retried.
package ingest
