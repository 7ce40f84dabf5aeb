package wavfile_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/audio/wavfile"
)

func writeWAV(t *testing.T, fs afero.Fs, path string, samples []int16, rate int) {
	t.Helper()
	rec, err := wavfile.NewRecorder(fs, path, rate)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Write(audio.Frame{Samples: samples, SampleRate: rate, Channels: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRecorderThenSource(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()

	want := make([]int16, 10000)
	for i := range want {
		want[i] = int16(i%2000 - 1000)
	}
	writeWAV(t, fs, "/captures/take.wav", want, 16000)

	src := wavfile.NewSource(fs, "/captures/take.wav", wavfile.WithFrameSize(4000))

	var (
		mu     sync.Mutex
		frames []audio.Frame
	)
	if err := src.Start(func(f audio.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if got := len(frames[2].Samples); got != 2000 {
		t.Errorf("last frame samples = %d, want 2000", got)
	}
	var got []int16
	for _, f := range frames {
		if f.SampleRate != 16000 || f.Channels != 1 {
			t.Errorf("frame format = %dHz/%d, want 16000Hz/1", f.SampleRate, f.Channels)
		}
		got = append(got, f.Samples...)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if !frames[1].Captured.After(frames[0].Captured) {
		t.Error("capture timestamps should advance by the frame duration")
	}
}

func TestSource_Resamples(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", make([]int16, 8000), 8000)

	src := wavfile.NewSource(fs, "/in.wav", wavfile.WithFrameSize(16000))
	var total int
	var mu sync.Mutex
	if err := src.Start(func(f audio.Frame) {
		mu.Lock()
		total += len(f.Samples)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-src.Done()
	_ = src.Close()

	mu.Lock()
	defer mu.Unlock()
	if total != 16000 {
		t.Errorf("total samples = %d, want 16000", total)
	}
}

func TestSource_TrailingSilence(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/in.wav", make([]int16, 1600), 16000)

	src := wavfile.NewSource(fs, "/in.wav",
		wavfile.WithFrameSize(1600),
		wavfile.WithTrailingSilence(500*time.Millisecond),
	)
	var count int
	var mu sync.Mutex
	if err := src.Start(func(audio.Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-src.Done()
	_ = src.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 6 {
		t.Errorf("frames = %d, want 6", count)
	}
}

func TestSource_MissingFile(t *testing.T) {
	t.Parallel()
	src := wavfile.NewSource(afero.NewMemMapFs(), "/nope.wav")
	err := src.Start(func(audio.Frame) {})
	if !errors.Is(err, audio.ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}
}

func TestSource_InvalidFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/bad.wav", []byte("definitely not riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := wavfile.NewSource(fs, "/bad.wav").Start(func(audio.Frame) {})
	if !errors.Is(err, audio.ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}
}

func TestRecorder_WriteAfterClose(t *testing.T) {
	t.Parallel()
	rec, err := wavfile.NewRecorder(afero.NewMemMapFs(), "/a/b.wav", 16000)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Write(audio.Frame{Samples: []int16{1, 2, 3}, SampleRate: 32000, Channels: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := rec.Samples(); got != 1 {
		t.Errorf("Samples = %d, want 1 (resampled 3 -> 1)", got)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := rec.Write(audio.Frame{Samples: []int16{1}}); err == nil {
		t.Error("Write after Close should fail")
	}
}
