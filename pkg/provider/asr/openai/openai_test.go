package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chalkvoice/chalkvoice/pkg/provider/asr/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, err := openai.New("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty audio, got nil")
	}
}

func TestTranscribe_UploadsClip(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotModel  string
		gotPrompt string
		gotFile   []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotPrompt = r.FormValue("prompt")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("reading file part: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " john is present "}`))
	}))
	defer ts.Close()

	p, err := openai.New("sk-test",
		openai.WithBaseURL(ts.URL),
		openai.WithPrompt("Attendance for section A"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := p.Transcribe(context.Background(), []byte("wav bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "john is present" {
		t.Errorf("transcript = %q, want trimmed %q", text, "john is present")
	}
	if gotPath != "/audio/transcriptions" {
		t.Errorf("request path = %q, want /audio/transcriptions", gotPath)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want default whisper-1", gotModel)
	}
	if gotPrompt != "Attendance for section A" {
		t.Errorf("prompt = %q not forwarded", gotPrompt)
	}
	if string(gotFile) != "wav bytes" {
		t.Error("audio bytes not uploaded")
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	p, err := openai.New("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("name = %q, want openai", p.Name())
	}
}
