package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/capture"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/promptgen"
	"murmur/internal/queue"
	"murmur/internal/render"
	"murmur/internal/services/comfyui"
	"murmur/internal/services/whisper"
	"murmur/internal/testsupport"
	"murmur/internal/transcribe"
)

type e2eWhisper struct {
	text string
}

func (f *e2eWhisper) TranscribeFile(_ context.Context, _, _ string) (whisper.TranscribeResult, error) {
	return whisper.TranscribeResult{Text: f.text, Language: "en"}, nil
}

func (f *e2eWhisper) Model() string { return "small" }

type e2eSessions struct {
	mu          sync.Mutex
	prompt      string
	requests    []string
	invalidated int
}

func (f *e2eSessions) Generate(_ context.Context, request string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	return f.prompt, nil
}

func (f *e2eSessions) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *e2eSessions) lastRequest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1]
}

type e2eJobs struct {
	mu      sync.Mutex
	data    []byte
	prompts []string
}

func (f *e2eJobs) GenerateImage(_ context.Context, _ comfyui.Workflow, prompt string) (*comfyui.ImageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return &comfyui.ImageResult{
		Data:     f.data,
		Filename: "murmur_00001_.png",
		PromptID: "job-e2e",
	}, nil
}

func (f *e2eJobs) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// TestPipelineEndToEnd exercises the real stage handlers against scripted
// external services: one captured clip flows capture → transcribe →
// promptgen → render and finishes holding all four artifacts.
func TestPipelineEndToEnd(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Transcription.RetryDelay = 0
	cfg.Prompt.RetryDelay = 0
	store := testsupport.MustOpenStore(t, cfg)

	audioPath := filepath.Join(cfg.AudioDir(), "recording_20260314_092653.wav")
	testsupport.WriteFile(t, audioPath, 256)
	recorder := &scriptedRecorder{steps: []recordStep{
		{clip: &capture.Clip{
			Path:       audioPath,
			Device:     "USB Microphone",
			CapturedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			Duration:   30 * time.Second,
		}},
	}}

	whisperFake := &e2eWhisper{text: "Rain taps the window while someone hums in the kitchen."}
	sessions := &e2eSessions{prompt: "A rain-streaked kitchen window at dusk, warm lamplight, soft focus"}
	jobs := &e2eJobs{data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}}
	notifier := &recordingNotifier{}
	logger := logging.NewNop()

	mgr := pipeline.NewManagerWithDependencies(cfg, store, logger, pipeline.Dependencies{
		Recorder: recorder,
		Sessions: sessions,
		Notifier: notifier,
		Stages: pipeline.StageSet{
			Transcriber: transcribe.NewTranscriberWithDependencies(cfg, store, logger, whisperFake),
			Generator:   promptgen.NewGeneratorWithDependencies(cfg, store, logger, sessions),
			Renderer:    render.NewRendererWithDependencies(cfg, store, logger, jobs),
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(mgr.Stop)

	item := waitForClip(t, store, audioPath)
	final := waitForStatus(t, store, item.ID, queue.StatusCompleted)

	if final.AudioPath != audioPath {
		t.Errorf("audio path = %q", final.AudioPath)
	}
	if final.Transcript != whisperFake.text {
		t.Errorf("transcript = %q", final.Transcript)
	}
	if final.TranscriptPath == "" || final.PromptPath == "" || final.ImagePath == "" {
		t.Fatalf("artifact paths missing: %+v", final)
	}
	if final.PromptText != sessions.prompt {
		t.Errorf("prompt text = %q", final.PromptText)
	}
	if final.RenderJobID != "job-e2e" {
		t.Errorf("render job id = %q", final.RenderJobID)
	}

	transcriptData, err := os.ReadFile(final.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript artifact: %v", err)
	}
	if !strings.Contains(string(transcriptData), "recording_20260314_092653.wav") {
		t.Errorf("transcript header lost the audio file name: %q", transcriptData)
	}
	if transcribe.ExtractContent(string(transcriptData)) != whisperFake.text {
		t.Errorf("transcript body = %q", transcriptData)
	}

	if request := sessions.lastRequest(); !strings.Contains(request, whisperFake.text) {
		t.Errorf("model request lost the transcript: %q", request)
	}
	if jobs.lastPrompt() != sessions.prompt {
		t.Errorf("render prompt = %q", jobs.lastPrompt())
	}

	imageData, err := os.ReadFile(final.ImagePath)
	if err != nil {
		t.Fatalf("read image artifact: %v", err)
	}
	if string(imageData) != string(jobs.data) {
		t.Errorf("image bytes do not match the render result")
	}

	// Every artifact shares the clip timestamp so the set sorts together.
	for _, artifact := range []string{final.TranscriptPath, final.PromptPath, final.ImagePath} {
		if !strings.Contains(filepath.Base(artifact), "20260314_092653") {
			t.Errorf("artifact %q does not carry the clip timestamp", artifact)
		}
	}

	deadline := time.After(10 * time.Second)
	for notifier.countOf(notifications.EventImageReady) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an image ready notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	mgr.RequestDrain()
	waitForExit(t, mgr)

	if sessions.invalidated != 0 {
		t.Errorf("session invalidated %d times on a clean run", sessions.invalidated)
	}
}
