package engine

import "testing"

func TestSpeakerTurns(t *testing.T) {
	words := []elevenlabsWord{
		{Text: "Hello", Type: "word", StartTimeMs: 0, EndTimeMs: 300, SpeakerID: "speaker_0"},
		{Text: " ", Type: "spacing", StartTimeMs: 300, EndTimeMs: 320},
		{Text: "there", Type: "word", StartTimeMs: 320, EndTimeMs: 800, SpeakerID: "speaker_0"},
		{Text: "hi", Type: "word", StartTimeMs: 1200, EndTimeMs: 1500, SpeakerID: "speaker_1"},
	}

	turns := speakerTurns(words, 0.9)

	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Speaker != "speaker_0" || turns[0].Start != 0 || turns[0].End != 0.8 {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].Speaker != "speaker_1" || turns[1].Start != 1.2 {
		t.Errorf("turn 1 = %+v", turns[1])
	}
	if turns[0].Quality != 0.9 {
		t.Errorf("quality = %f", turns[0].Quality)
	}
}

func TestSpeakerTurns_NoSpeakerIDs(t *testing.T) {
	words := []elevenlabsWord{
		{Text: "plain", Type: "word", StartTimeMs: 0, EndTimeMs: 400},
	}
	if turns := speakerTurns(words, 1); turns != nil {
		t.Errorf("expected nil turns without speaker ids, got %v", turns)
	}
}
