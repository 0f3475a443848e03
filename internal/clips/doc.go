// Package clips implements the GenerateVideoAssets stage.
//
// The top clips.max_moments moments by importance each become one fan-out
// unit. A unit cuts every configured variant (horizontal, micro, vertical)
// with ffmpeg, publishes the files through storage and upserts one asset
// row per variant keyed by kind and moment ordinal, so a rerun replaces
// rows instead of appending. A variant that fails leaves a failed row with
// its reason; the unit then fails without stopping the other units.
package clips
