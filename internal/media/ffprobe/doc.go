// Package ffprobe inspects media containers through ffprobe's JSON output.
//
// Inspect runs the binary and decodes streams and format metadata; the
// Result helpers answer the questions ingest asks of a source video: its
// duration, size, primary video stream and whether it carries audio.
package ffprobe
