package repositories

import "context"

// AudioChunk is one piece of synthesized PCM. A chunk with Err set is the last
// one sent and means the stream ended early.
type AudioChunk struct {
	PCM []byte
	Err error
}

// TextToSpeech synthesizes the model pronunciation of a reference sentence.
// The channel yields raw PCM chunks and is closed when synthesis ends.
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan AudioChunk, error)
	// SampleRate of the PCM produced by ConvertTextToSpeech
	SampleRate() int
}
