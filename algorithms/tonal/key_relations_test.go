package tonal

import "testing"

func TestKeyRelations(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(int, KeyMode) (int, KeyMode)
		tonic int
		mode  KeyMode
		want  string
	}{
		{"relative of C major", RelativeKey, 0, KeyModeMajor, "A minor"},
		{"relative of A minor", RelativeKey, 9, KeyModeMinor, "C major"},
		{"relative of D# major", RelativeKey, 3, KeyModeMajor, "C minor"},
		{"parallel of E minor", ParallelKey, 4, KeyModeMinor, "E major"},
		{"dominant of F major", DominantKey, 5, KeyModeMajor, "C major"},
		{"subdominant of C minor", SubdominantKey, 0, KeyModeMinor, "F minor"},
		{"dominant of B major wraps", DominantKey, 11, KeyModeMajor, "F# major"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyName(tt.fn(tt.tonic, tt.mode)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRelatedKeys(t *testing.T) {
	related := RelatedKeys(7, KeyModeMajor)

	want := []struct{ relation, key string }{
		{"relative", "E minor"},
		{"parallel", "G minor"},
		{"dominant", "D major"},
		{"subdominant", "C major"},
	}

	if len(related) != len(want) {
		t.Fatalf("expected %d relations, got %d", len(want), len(related))
	}
	for i, w := range want {
		if related[i].Relation != w.relation || related[i].Key.Name() != w.key {
			t.Errorf("relation %d = %s %s, want %s %s", i, related[i].Relation, related[i].Key.Name(), w.relation, w.key)
		}
	}
}

func TestIsKeyCompatible(t *testing.T) {
	g := KeyCandidate{Tonic: 7, Mode: KeyModeMajor}

	compatible := []KeyCandidate{
		{Tonic: 7, Mode: KeyModeMajor},
		{Tonic: 4, Mode: KeyModeMinor},
		{Tonic: 7, Mode: KeyModeMinor},
		{Tonic: 2, Mode: KeyModeMajor},
		{Tonic: 0, Mode: KeyModeMajor},
	}
	for _, kc := range compatible {
		if !IsKeyCompatible(g, kc) {
			t.Errorf("expected G major compatible with %s", kc.Name())
		}
	}

	if IsKeyCompatible(g, KeyCandidate{Tonic: 1, Mode: KeyModeMajor}) {
		t.Error("G major and C# major should not be compatible")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"F# minor", "F# minor", false},
		{"Bb major", "A# major", false},
		{"Am", "A minor", false},
		{"Ebm", "D# minor", false},
		{"C", "C major", false},
		{"  g   MIN ", "G minor", false},
		{"H major", "", true},
		{"C dorian", "", true},
		{"", "", true},
		{"C sharp major", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tonic, mode, err := ParseKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && KeyName(tonic, mode) != tt.want {
				t.Errorf("ParseKey(%q) = %s, want %s", tt.in, KeyName(tonic, mode), tt.want)
			}
		})
	}
}
