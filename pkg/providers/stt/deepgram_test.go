package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/roomcast/pkg/orchestrator"
)

func TestDeepgramSTT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		resp := map[string]interface{}{
			"results": map[string]interface{}{
				"channels": []map[string]interface{}{
					{
						"alternatives": []map[string]interface{}{
							{"transcript": "deepgram transcription", "confidence": 0.92},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL, sampleRate: 16000}

	result, err := s.Transcribe(context.Background(), []byte{0, 0}, orchestrator.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "deepgram transcription" {
		t.Errorf("expected 'deepgram transcription', got %q", result.Text)
	}
	if result.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", result.Confidence)
	}
	if s.Name() != "deepgram-stt" {
		t.Errorf("expected deepgram-stt, got %s", s.Name())
	}
}

func TestDeepgramSTT_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"results": map[string]interface{}{"channels": []interface{}{}}})
	}))
	defer server.Close()

	s := &DeepgramSTT{apiKey: "test-key", url: server.URL, sampleRate: 16000}
	result, err := s.Transcribe(context.Background(), []byte{0}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "" {
		t.Errorf("expected empty transcript, got %q", result.Text)
	}
}
