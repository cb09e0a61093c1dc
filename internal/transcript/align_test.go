package transcript

import (
	"testing"
)

func TestAlign_TwoSpeakers(t *testing.T) {
	tokens := []Token{
		{Text: "Hello", Start: 0.0, End: 0.3},
		{Text: " there", Start: 0.3, End: 0.8},
		{Text: "!", Start: 0.8, End: 1.05},
		{Text: " second", Start: 1.2, End: 1.8},
		{Text: " speaker", Start: 1.8, End: 2.3},
		{Text: " again", Start: 2.3, End: 2.8},
	}
	turns := []SpeakerTurn{
		{Speaker: "Speaker_1", Start: 0.0, End: 1.1},
		{Speaker: "Speaker_2", Start: 1.2, End: 2.9},
	}

	utts := Align(tokens, turns, 3.0)

	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].Speaker != "Speaker_1" || utts[0].Text != "Hello there!" {
		t.Errorf("utterance 0 = (%q, %q)", utts[0].Speaker, utts[0].Text)
	}
	if utts[0].Start != 0.0 || utts[0].End != 1.1 {
		t.Errorf("utterance 0 times = (%f, %f), want (0.0, 1.1)", utts[0].Start, utts[0].End)
	}
	if utts[1].Speaker != "Speaker_2" || utts[1].Text != "second speaker again" {
		t.Errorf("utterance 1 = (%q, %q)", utts[1].Speaker, utts[1].Text)
	}
	if utts[1].Start != 1.2 || utts[1].End != 2.9 {
		t.Errorf("utterance 1 times = (%f, %f), want (1.2, 2.9)", utts[1].Start, utts[1].End)
	}
}

func TestAlign_TimesComeFromTurns(t *testing.T) {
	// Token extrema (0.5..0.9) differ from the turn (0.0..2.0); the
	// utterance must carry the turn's times.
	tokens := []Token{{Text: "word", Start: 0.5, End: 0.9}}
	turns := []SpeakerTurn{{Speaker: "A", Start: 0.0, End: 2.0}}

	utts := Align(tokens, turns, 5.0)

	if utts[0].Start != 0.0 || utts[0].End != 2.0 {
		t.Errorf("times = (%f, %f), want (0.0, 2.0)", utts[0].Start, utts[0].End)
	}
}

func TestAlign_UnorderedInput(t *testing.T) {
	tokens := []Token{
		{Text: " world", Start: 0.5, End: 1.0},
		{Text: "hello", Start: 0.0, End: 0.5},
	}
	utts := Align(tokens, nil, 1.0)

	if len(utts) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utts))
	}
	if utts[0].Text != "hello world" {
		t.Errorf("text = %q, want %q", utts[0].Text, "hello world")
	}
}

func TestAlign_EmptyTokens(t *testing.T) {
	utts := Align(nil, []SpeakerTurn{{Speaker: "A", Start: 0, End: 1}}, 1.0)
	if utts != nil {
		t.Errorf("expected nil, got %v", utts)
	}
}

func TestAlign_NoTurns(t *testing.T) {
	tokens := []Token{
		{Text: "one", Start: 0.0, End: 0.4},
		{Text: " two", Start: 0.4, End: 0.9},
	}
	utts := Align(tokens, nil, 1.0)

	if len(utts) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utts))
	}
	if utts[0].Speaker != "" {
		t.Errorf("speaker = %q, want empty", utts[0].Speaker)
	}
	if utts[0].Start != 0.0 || utts[0].End != 0.9 {
		t.Errorf("times = (%f, %f), want token span (0.0, 0.9)", utts[0].Start, utts[0].End)
	}
}

func TestAlign_GapTokenGoesToNearestTurn(t *testing.T) {
	// Token at 1.5 sits in the gap between turns ending at 1.0 and
	// starting at 2.5; it is closer to the first turn's end.
	tokens := []Token{
		{Text: "a", Start: 0.5, End: 0.8},
		{Text: " gap", Start: 1.5, End: 1.7},
		{Text: " b", Start: 2.6, End: 2.9},
	}
	turns := []SpeakerTurn{
		{Speaker: "A", Start: 0.0, End: 1.0},
		{Speaker: "B", Start: 2.5, End: 3.0},
	}

	utts := Align(tokens, turns, 3.0)

	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].Text != "a gap" {
		t.Errorf("utterance 0 text = %q, want %q", utts[0].Text, "a gap")
	}
	if utts[1].Text != "b" {
		t.Errorf("utterance 1 text = %q, want %q", utts[1].Text, "b")
	}
}

func TestAlign_GapTiePrefersEarlierTurn(t *testing.T) {
	// Token at 1.5 is equidistant from End=1.0 and Start=2.0.
	tokens := []Token{{Text: "tie", Start: 1.5, End: 1.6}}
	turns := []SpeakerTurn{
		{Speaker: "A", Start: 0.0, End: 1.0},
		{Speaker: "B", Start: 2.0, End: 3.0},
	}

	utts := Align(tokens, turns, 3.0)

	if utts[0].Speaker != "A" {
		t.Errorf("speaker = %q, want A (earlier turn wins ties)", utts[0].Speaker)
	}
}

func TestAlign_BoundaryTokenBelongsToNextTurn(t *testing.T) {
	// Half-open intervals: a token starting exactly at a turn's end is
	// covered by the next turn.
	tokens := []Token{{Text: "edge", Start: 1.0, End: 1.2}}
	turns := []SpeakerTurn{
		{Speaker: "A", Start: 0.0, End: 1.0},
		{Speaker: "B", Start: 1.0, End: 2.0},
	}

	utts := Align(tokens, turns, 2.0)

	if utts[0].Speaker != "B" {
		t.Errorf("speaker = %q, want B", utts[0].Speaker)
	}
}

func TestAlign_SameSpeakerSeparateTurnsNotMerged(t *testing.T) {
	tokens := []Token{
		{Text: "first", Start: 0.1, End: 0.4},
		{Text: " second", Start: 2.1, End: 2.4},
	}
	turns := []SpeakerTurn{
		{Speaker: "A", Start: 0.0, End: 1.0},
		{Speaker: "A", Start: 2.0, End: 3.0},
	}

	utts := Align(tokens, turns, 3.0)

	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances (turn identity, not speaker), got %d", len(utts))
	}
}

func TestAlign_DurationClampsLastUtterance(t *testing.T) {
	tokens := []Token{{Text: "tail", Start: 0.1, End: 0.5}}
	turns := []SpeakerTurn{{Speaker: "A", Start: 0.0, End: 5.0}}

	utts := Align(tokens, turns, 3.0)

	if utts[0].End != 3.0 {
		t.Errorf("end = %f, want clamped to 3.0", utts[0].End)
	}
}

func TestAlign_InvalidTurnsFallBack(t *testing.T) {
	tokens := []Token{
		{Text: "a", Start: 0.0, End: 0.5},
		{Text: " b", Start: 0.5, End: 1.0},
	}
	turns := []SpeakerTurn{{Speaker: "A", Start: 2.0, End: 1.0}} // end before start

	utts := Align(tokens, turns, 1.0)

	if len(utts) != 1 {
		t.Fatalf("expected single fallback utterance, got %d", len(utts))
	}
	if utts[0].Speaker != "" {
		t.Errorf("speaker = %q, want empty on fallback", utts[0].Speaker)
	}
}

func TestAlign_IndicesAndOrdering(t *testing.T) {
	tokens := []Token{
		{Text: "a", Start: 0.1, End: 0.2},
		{Text: " b", Start: 1.1, End: 1.2},
		{Text: " c", Start: 2.1, End: 2.2},
	}
	turns := []SpeakerTurn{
		{Speaker: "A", Start: 0.0, End: 1.0},
		{Speaker: "B", Start: 1.0, End: 2.0},
		{Speaker: "C", Start: 2.0, End: 3.0},
	}

	utts := Align(tokens, turns, 3.0)

	for i, u := range utts {
		if u.Index != i+1 {
			t.Errorf("utterance %d: index = %d, want %d", i, u.Index, i+1)
		}
		if i > 0 && u.Start < utts[i-1].Start {
			t.Errorf("utterance %d: start %f before previous %f", i, u.Start, utts[i-1].Start)
		}
	}
}

func TestValidateTurns(t *testing.T) {
	cases := []struct {
		name    string
		turns   []SpeakerTurn
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid", []SpeakerTurn{{Speaker: "A", Start: 0, End: 1}, {Speaker: "B", Start: 1.5, End: 2}}, false},
		{"negative_start", []SpeakerTurn{{Start: -0.1, End: 1}}, true},
		{"zero_length", []SpeakerTurn{{Start: 1, End: 1}}, true},
		{"out_of_order", []SpeakerTurn{{Start: 2, End: 3}, {Start: 0, End: 1}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTurns(tc.turns)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateTurns = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_FullText(t *testing.T) {
	m := New([]Utterance{
		{Text: "Hello there!", Index: 1},
		{Text: "second speaker again", Index: 2},
	}, "en", 3.0, true)

	want := "Hello there! second speaker again"
	if m.FullText != want {
		t.Errorf("FullText = %q, want %q", m.FullText, want)
	}
}
