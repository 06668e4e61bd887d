package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/satriahrh/lafal/domain/entities"
)

func testClip(t *testing.T) entities.AudioClip {
	t.Helper()
	clip, err := Normalize(FloatSource{Samples: []float32{0, 0.25, -0.25, 0.5}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return clip
}

func TestStage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	clip := testClip(t)

	handle, err := Stage(dir, clip)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	defer handle.Release()

	if filepath.Dir(handle.Path()) != dir {
		t.Errorf("Expected staged file under %s, got %s", dir, handle.Path())
	}

	data, err := handle.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	again, err := Normalize(EncodedSource{Data: data})
	if err != nil {
		t.Fatalf("Normalize of staged container failed: %v", err)
	}
	if again.SampleRate != clip.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", clip.SampleRate, again.SampleRate)
	}
	if string(again.Data) != string(clip.Data) {
		t.Error("Expected staged container to carry the same samples")
	}
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	handle, err := Stage(t.TempDir(), testClip(t))
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if err := handle.Release(); err != nil {
		t.Errorf("First release failed: %v", err)
	}
	if err := handle.Release(); err != nil {
		t.Errorf("Second release failed: %v", err)
	}
	if _, err := os.Stat(handle.Path()); !os.IsNotExist(err) {
		t.Error("Expected staged file to be removed")
	}
}

func TestStage_EmptyClip(t *testing.T) {
	dir := t.TempDir()
	_, err := Stage(dir, entities.AudioClip{SampleRate: 16000})
	if !errors.Is(err, entities.ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no leftover files, got %d", len(entries))
	}
}

func TestWithStaged_ReleasesOnEveryPath(t *testing.T) {
	clip := testClip(t)

	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		var path string
		err := WithStaged(dir, clip, func(h *Handle) error {
			path = h.Path()
			if _, err := os.Stat(path); err != nil {
				t.Errorf("Expected staged file to exist inside fn: %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithStaged failed: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("Expected staged file to be removed after success")
		}
	})

	t.Run("error", func(t *testing.T) {
		dir := t.TempDir()
		boom := errors.New("recognizer down")
		err := WithStaged(dir, clip, func(h *Handle) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected fn error to propagate, got %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("Expected staged file removed after error, found %d files", len(entries))
		}
	})

	t.Run("panic", func(t *testing.T) {
		dir := t.TempDir()
		func() {
			defer func() {
				if recover() == nil {
					t.Error("Expected panic to propagate")
				}
			}()
			WithStaged(dir, clip, func(h *Handle) error {
				panic("unexpected")
			})
		}()
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("Expected staged file removed after panic, found %d files", len(entries))
		}
	})
}
