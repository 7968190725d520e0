package stt

import "testing"

func TestAssemblyAISTT_Basics(t *testing.T) {
	if !NewAssemblyAISTT("test-key").Available() {
		t.Error("expected Available() true with an api key set")
	}
	if NewAssemblyAISTT("").Available() {
		t.Error("expected Available() false with no api key")
	}
	if NewAssemblyAISTT("test-key").Name() != "assemblyai-stt" {
		t.Error("unexpected name")
	}
}
