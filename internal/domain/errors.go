package domain

import "errors"

// ErrNoChapters indicates no segmentation strategy yielded a non-empty chapter
var ErrNoChapters = errors.New("no chapters detected")

// ErrMissingMP3URL indicates the TTS response carried no mp3_url field
var ErrMissingMP3URL = errors.New("tts response missing mp3_url")

// ErrMP3NotReady indicates polling exhausted all attempts on HTTP 202
var ErrMP3NotReady = errors.New("mp3 not ready after polling")

// ErrLeaseLost indicates a heartbeat touched zero rows: the watchdog has
// re-queued the task under a new generation
var ErrLeaseLost = errors.New("task lease lost")
