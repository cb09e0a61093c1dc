package transcript

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateTurns reports whether a diarization result is usable for
// alignment. Callers should log the error and fall back to undiarized
// alignment rather than failing the request.
func ValidateTurns(turns []SpeakerTurn) error {
	for i, tr := range turns {
		if tr.Start < 0 {
			return fmt.Errorf("turn %d: negative start %f", i, tr.Start)
		}
		if tr.End <= tr.Start {
			return fmt.Errorf("turn %d: end %f not after start %f", i, tr.End, tr.Start)
		}
		if i > 0 && tr.Start < turns[i-1].Start {
			return fmt.Errorf("turn %d: starts before turn %d", i, i-1)
		}
	}
	return nil
}

// Align maps a token timeline and a diarization timeline into
// speaker-attributed utterances.
//
// Tokens are sorted by start time (stable, so emission order breaks
// ties). Each token is assigned to the turn covering its start time
// (half-open [Start, End), so a token starting exactly at a turn's end
// belongs to the next turn); tokens falling in a gap go to the nearest
// turn by boundary distance, ties preferring the earlier turn.
// Consecutive tokens sharing an assigned turn form one utterance whose
// Start/End come from the turn itself. duration caps the last
// utterance's End only when it would exceed the audio length.
//
// Empty tokens yield nil. Empty or invalid turns yield a single
// unattributed utterance spanning the token range.
func Align(tokens []Token, turns []SpeakerTurn, duration float64) []Utterance {
	if len(tokens) == 0 {
		return nil
	}

	sorted := make([]Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	if len(turns) == 0 || ValidateTurns(turns) != nil {
		u := Utterance{
			Text:  joinTokens(sorted),
			Start: sorted[0].Start,
			End:   sorted[len(sorted)-1].End,
			Index: 1,
		}
		if duration > 0 && u.End > duration {
			u.End = duration
		}
		return []Utterance{u}
	}

	assigned := make([]int, len(sorted))
	for i, tk := range sorted {
		assigned[i] = assignTurn(tk.Start, turns)
	}

	var out []Utterance
	runStart := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && assigned[i] == assigned[runStart] {
			continue
		}
		turn := turns[assigned[runStart]]
		out = append(out, Utterance{
			Speaker: turn.Speaker,
			Text:    joinTokens(sorted[runStart:i]),
			Start:   turn.Start,
			End:     turn.End,
			Index:   len(out) + 1,
		})
		runStart = i
	}

	if duration > 0 {
		last := &out[len(out)-1]
		if last.End > duration {
			last.End = duration
		}
	}
	return out
}

// assignTurn picks the covering turn for a token start time: the turn
// with the largest Start <= t, provided t < End. Uncovered times fall
// back to the nearest turn by boundary distance, earlier turn on ties.
func assignTurn(t float64, turns []SpeakerTurn) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Start <= t {
			if t < turns[i].End {
				return i
			}
			break
		}
	}

	best := 0
	bestDist := boundaryDist(t, turns[0])
	for i := 1; i < len(turns); i++ {
		if d := boundaryDist(t, turns[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func boundaryDist(t float64, turn SpeakerTurn) float64 {
	ds := abs(t - turn.Start)
	de := abs(t - turn.End)
	if de < ds {
		return de
	}
	return ds
}

// joinTokens concatenates token texts with no added separators beyond
// what each token carries, then trims the edges.
func joinTokens(tokens []Token) string {
	var b strings.Builder
	for _, tk := range tokens {
		b.WriteString(tk.Text)
	}
	return strings.TrimSpace(b.String())
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
