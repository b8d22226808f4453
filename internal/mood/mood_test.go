package mood

import (
	"math"
	"testing"
)

func TestClassifyScoresSumToOne(t *testing.T) {
	inputs := []Input{
		{Energy: 0.9, Valence: 0.1, BPM: 160, Acousticness: 0.05, Mode: ModeMinor},
		{Energy: 0.2, Valence: 0.7, BPM: 80, Acousticness: 0.8, Mode: ModeMajor},
		{Energy: 0.5, Valence: 0.5, BPM: 120, Acousticness: 0.5, Mode: ModeUnknown},
	}

	for _, in := range inputs {
		_, scores, _ := Classify(in)
		sum := scores.Sum()
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("Classify(%+v) scores sum to %f, want 1.0", in, sum)
		}
	}
}

func TestClassifyAggressive(t *testing.T) {
	tag, _, _ := Classify(Input{Energy: 0.9, Valence: 0.1, BPM: 170, Acousticness: 0.05, Mode: ModeMinor})
	if tag != Aggressive {
		t.Errorf("Classify(high energy, low valence, minor) = %s, want %s", tag, Aggressive)
	}
}

func TestClassifyEuphoric(t *testing.T) {
	tag, _, _ := Classify(Input{Energy: 0.85, Valence: 0.85, BPM: 128, Acousticness: 0.2, Mode: ModeMajor})
	if tag != Euphoric {
		t.Errorf("Classify(high energy, high valence) = %s, want %s", tag, Euphoric)
	}
}

func TestClassifyCalm(t *testing.T) {
	tag, _, _ := Classify(Input{Energy: 0.15, Valence: 0.55, BPM: 70, Acousticness: 0.9, Mode: ModeUnknown})
	if tag != Calm {
		t.Errorf("Classify(low energy, high acousticness) = %s, want %s", tag, Calm)
	}
}

func TestClassifyHappy(t *testing.T) {
	tag, _, _ := Classify(Input{Energy: 0.5, Valence: 0.7, BPM: 110, Acousticness: 0.4, Mode: ModeMajor})
	if tag != Happy {
		t.Errorf("Classify(moderate energy, high valence, major) = %s, want %s", tag, Happy)
	}
}

func TestClassifyNeutralFallback(t *testing.T) {
	tag, _, confidence := Classify(Input{Energy: 0.5, Valence: 0.5, BPM: 0, Acousticness: 0.5, Mode: ModeUnknown})
	if tag != Neutral {
		t.Errorf("Classify(flat input) = %s, want %s", tag, Neutral)
	}

	if confidence != 0 {
		t.Errorf("Classify(flat input) confidence = %f, want 0 (no rule after neutral)", confidence)
	}
}

func TestClassifyClampsOutOfRangeInputs(t *testing.T) {
	tag, scores, confidence := Classify(Input{Energy: 5, Valence: -3, BPM: 1e9, Acousticness: -1, Mode: ModeMinor})

	if tag == "" {
		t.Fatalf("expected a mood tag even for out-of-range input")
	}

	sum := scores.Sum()
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("out-of-range input produced scores summing to %f, want 1.0", sum)
	}

	if confidence < 0 || confidence > 1 {
		t.Errorf("confidence %f out of [0, 1]", confidence)
	}
}

func TestClassifyConfidenceWithinRange(t *testing.T) {
	_, _, confidence := Classify(Input{Energy: 0.9, Valence: 0.05, BPM: 175, Acousticness: 0.02, Mode: ModeMinor})
	if confidence < 0 || confidence > 1 {
		t.Errorf("confidence %f out of [0, 1]", confidence)
	}
}

func TestDistanceSameTagIsZero(t *testing.T) {
	if d := Distance(Calm, Calm); d != 0 {
		t.Errorf("Distance(Calm, Calm) = %f, want 0", d)
	}
}

func TestDistanceIsSymmetricAndBounded(t *testing.T) {
	d1 := Distance(Aggressive, Calm)
	d2 := Distance(Calm, Aggressive)
	if d1 != d2 {
		t.Errorf("Distance not symmetric: %f vs %f", d1, d2)
	}
	if d1 < 0 || d1 > 1 {
		t.Errorf("Distance out of [0,1]: %f", d1)
	}
	if d1 <= Distance(Calm, Calm) {
		t.Errorf("expected opposing moods to be farther apart than identical ones")
	}
}
