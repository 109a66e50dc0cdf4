package coqui_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/twinvoice/pkg/audio"
	"github.com/MrWong99/twinvoice/pkg/provider/tts"
	"github.com/MrWong99/twinvoice/pkg/provider/tts/coqui"
)

func TestNew_EmptyURL(t *testing.T) {
	if _, err := coqui.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestSynthesize_Standard(t *testing.T) {
	wav, err := audio.EncodeWAV(make([]byte, 320), 22050, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, _ := coqui.New(srv.URL, coqui.WithLanguage("en"), coqui.WithSpeaker("p225"))
	speech, err := p.Synthesize(context.Background(), tts.Request{Text: "I am a fresher.", Language: "de"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if speech.Format != "wav" || len(speech.Data) != len(wav) {
		t.Errorf("speech: format %q, %d bytes", speech.Format, len(speech.Data))
	}
	if gotQuery.Get("text") != "I am a fresher." {
		t.Errorf("text: %q", gotQuery.Get("text"))
	}
	if gotQuery.Get("speaker_id") != "p225" {
		t.Errorf("speaker_id: %q", gotQuery.Get("speaker_id"))
	}
	if gotQuery.Get("language_id") != "de" {
		t.Errorf("language_id: %q, want request override", gotQuery.Get("language_id"))
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "no", http.StatusInternalServerError) }},
		{"not wav", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			p, _ := coqui.New(srv.URL)
			if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
