// Package ffmpeg cuts clip variants out of an ingested source video.
//
// Each Variant maps to a fixed encoding recipe tuned for small, fast
// outputs: a 480p horizontal cut, a short micro cut, and a 720x1280
// letterboxed vertical cut that can carry burned-in captions. SRT renders
// transcript segments into a caption file for the vertical variant.
package ffmpeg
