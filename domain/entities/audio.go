package entities

import "time"

// AudioFormat names the container an AudioClip is handed off in
type AudioFormat string

const (
	AudioFormatWAV AudioFormat = "wav"
)

// AudioClip is a normalized recording: mono, 16-bit signed little-endian PCM
type AudioClip struct {
	Format     AudioFormat `json:"format"`
	Channels   int         `json:"channels"`
	BitDepth   int         `json:"bit_depth"`
	SampleRate int         `json:"sample_rate"`
	Data       []byte      `json:"-"`
}

// Samples returns the number of PCM samples in the clip
func (a AudioClip) Samples() int {
	if a.BitDepth <= 0 || a.Channels <= 0 {
		return 0
	}
	return len(a.Data) / (a.BitDepth / 8) / a.Channels
}

// Duration returns the playback length of the clip
func (a AudioClip) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.Samples()) * time.Second / time.Duration(a.SampleRate)
}

// Empty reports whether the clip carries no samples
func (a AudioClip) Empty() bool {
	return len(a.Data) == 0
}
