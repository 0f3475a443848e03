// Package transcription implements the Transcribe stage.
//
// The default provider shells out to the whisper command-line tool: ffmpeg
// first extracts 16 kHz mono PCM audio into a scratch directory, whisper
// writes a JSON report next to it, and the report's segments become the
// project's transcript. A failed or timed-out whisper run is retryable
// (ErrServiceUnavailable); a run that yields no speech is terminal
// (ErrUnintelligibleAudio). Re-running the stage replaces the transcript.
package transcription
