// Package textutil provides small text helpers shared by asset stages:
// filesystem-safe tokens for stored object names, length-limited excerpts
// for platform captions, and title casing for asset titles.
package textutil
