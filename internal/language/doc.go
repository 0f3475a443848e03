// Package language normalizes the language codes reported by transcription
// providers to ISO 639-1 and maps them to display names for manifests.
package language
