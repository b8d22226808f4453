package camelot

import (
	"encoding/json"
	"testing"

	"crateforge/internal/apperror"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{"8A", Key{Number: 8, Letter: 'A'}, false},
		{"12B", Key{Number: 12, Letter: 'B'}, false},
		{"", Key{}, true},
		{"13A", Key{}, true},
		{"8C", Key{}, true},
		{"garbage", Key{}, true},
	}

	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got nil", c.in)
			} else if apperror.CodeOf(err) != apperror.InvalidArgument {
				t.Errorf("Parse(%q): expected InvalidArgument, got %v", c.in, apperror.CodeOf(err))
			}
			continue
		}

		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", c.in, err)
		}

		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, code := range []string{"1A", "8B", "12A"} {
		k, err := Parse(code)
		if err != nil {
			t.Fatalf("Parse(%q): %v", code, err)
		}

		if k.String() != code {
			t.Errorf("String() = %q, want %q", k.String(), code)
		}
	}
}

func TestKeyNameRoundTrip(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for _, letter := range []byte{'A', 'B'} {
			k := Key{Number: n, Letter: letter}
			name, err := k.KeyName()
			if err != nil {
				t.Fatalf("KeyName() for %s: %v", k, err)
			}

			back, err := FromKeyName(name)
			if err != nil {
				t.Fatalf("FromKeyName(%q): %v", name, err)
			}

			if back != k {
				t.Errorf("round trip %s -> %q -> %s, want %s", k, name, back, k)
			}
		}
	}
}

func TestFromKeyNameUnknown(t *testing.T) {
	_, err := FromKeyName("H#")
	if apperror.CodeOf(err) != apperror.NotFound {
		t.Errorf("FromKeyName(unknown) code = %v, want NotFound", apperror.CodeOf(err))
	}
}

func TestDistance(t *testing.T) {
	mustParse := func(s string) Key {
		k, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		return k
	}

	cases := []struct {
		a, b string
		want int
	}{
		{"8A", "8A", DistancePerfect},
		{"8A", "8B", DistanceExcellent},  // relative major/minor
		{"8A", "9A", DistanceExcellent},  // +1 same letter
		{"8A", "7A", DistanceExcellent},  // -1 same letter
		{"1A", "12A", DistanceExcellent}, // wraps around the wheel
		{"8B", "5A", DistanceDramatic},   // parallel C major / C minor
		{"8A", "2B", DistanceIncompatible},
	}

	for _, c := range cases {
		got := Distance(mustParse(c.a), mustParse(c.b))
		if got != c.want {
			t.Errorf("Distance(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestDistanceZeroKeyIsIncompatible(t *testing.T) {
	k, _ := Parse("8A")
	if got := Distance(Key{}, k); got != DistanceIncompatible {
		t.Errorf("Distance(zero, 8A) = %d, want %d", got, DistanceIncompatible)
	}
}

func TestIsParallelMajorMinor(t *testing.T) {
	cMinor, _ := Parse("5A")
	cMajor, _ := Parse("8B")

	if !IsParallelMajorMinor(cMinor, cMajor) {
		t.Errorf("expected 5A/8B to be parallel major/minor")
	}

	if !IsParallelMajorMinor(cMajor, cMinor) {
		t.Errorf("expected parallel relation to be symmetric")
	}

	aMinor, _ := Parse("8A")
	if IsParallelMajorMinor(aMinor, cMajor) {
		t.Errorf("did not expect 8A/8B to be a parallel relation (that's relative major/minor)")
	}
}

func TestNeighborsIncludesSelfRelativeAndParallel(t *testing.T) {
	k, _ := Parse("8A")
	neighbors := Neighbors(k)

	want := map[Key]bool{
		{8, 'A'}:  false,
		{8, 'B'}:  false,
		{7, 'A'}:  false,
		{9, 'A'}:  false,
		{11, 'B'}: false,
	}

	for _, n := range neighbors {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}

	for k, found := range want {
		if !found {
			t.Errorf("expected Neighbors(8A) to include %s", k)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	k, _ := Parse("8A")

	data, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"8A"` {
		t.Errorf("Marshal(8A) = %s, want \"8A\"", data)
	}

	var back Key
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != k {
		t.Errorf("round trip = %s, want %s", back, k)
	}
}

func TestJSONZeroKey(t *testing.T) {
	data, err := json.Marshal(Key{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `""` {
		t.Errorf("Marshal(zero) = %s, want \"\"", data)
	}

	var back Key
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.IsZero() {
		t.Errorf("round trip of zero Key = %+v, want zero", back)
	}
}

func TestNeighborsWrapsAtWheelBoundary(t *testing.T) {
	k, _ := Parse("1A")
	neighbors := Neighbors(k)

	foundWrap := false
	for _, n := range neighbors {
		if n == (Key{12, 'A'}) {
			foundWrap = true
		}
	}

	if !foundWrap {
		t.Errorf("expected Neighbors(1A) to wrap to 12A, got %v", neighbors)
	}
}
