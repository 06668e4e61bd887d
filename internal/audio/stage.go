package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satriahrh/lafal/domain/entities"
)

const stagePattern = "lafal-*.wav"

// EncodeWAV writes the clip as a mono 16-bit PCM WAV container
func EncodeWAV(w io.WriteSeeker, clip entities.AudioClip) error {
	if clip.Empty() {
		return entities.ErrEmptyAudio
	}
	if len(clip.Data)%2 != 0 {
		return ErrMisalignedPCM
	}

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: canonicalChannels, SampleRate: clip.SampleRate},
		SourceBitDepth: canonicalBitDepth,
	}
	samples := make([]int, len(clip.Data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(clip.Data[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(w, clip.SampleRate, canonicalBitDepth, canonicalChannels, wavFormatPCM)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// Handle is a staged clip on disk. Release must be called once the handoff is done.
type Handle struct {
	path string
	clip entities.AudioClip

	once       sync.Once
	releaseErr error
}

// Stage writes the clip to a temporary WAV file under dir (os.TempDir when empty)
func Stage(dir string, clip entities.AudioClip) (*Handle, error) {
	file, err := os.CreateTemp(dir, stagePattern)
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}

	if err := EncodeWAV(file, clip); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("close temp wav: %w", err)
	}

	return &Handle{path: file.Name(), clip: clip}, nil
}

// Path of the staged file
func (h *Handle) Path() string {
	return h.path
}

// Clip that was staged
func (h *Handle) Clip() entities.AudioClip {
	return h.clip
}

// ReadAll returns the WAV container bytes
func (h *Handle) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("read staged wav: %w", err)
	}
	return data, nil
}

// Release deletes the staged file. Safe to call more than once.
func (h *Handle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.releaseErr = fmt.Errorf("remove staged wav: %w", err)
		}
	})
	return h.releaseErr
}

// WithStaged stages the clip, runs fn with the handle and releases the file on every exit path
func WithStaged(dir string, clip entities.AudioClip, fn func(*Handle) error) (err error) {
	handle, err := Stage(dir, clip)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := handle.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	return fn(handle)
}
