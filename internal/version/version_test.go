package version

import "testing"

func intPtr(i int) *int { return &i }

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		wantType   PatternType
		wantMajor  *int
		wantMinor  *int
		wantPatch  *int
		wantSuffix string
		wantErr    bool
	}{
		{
			name:     "default pattern",
			pattern:  "default",
			wantType: PatternDefault,
		},
		{
			name:     "default pattern uppercase",
			pattern:  "DEFAULT",
			wantType: PatternDefault,
		},
		{
			name:      "major wildcard",
			pattern:   "1.x",
			wantType:  PatternMajor,
			wantMajor: intPtr(1),
		},
		{
			name:      "major wildcard uppercase X",
			pattern:   "1.X",
			wantType:  PatternMajor,
			wantMajor: intPtr(1),
		},
		{
			name:      "minor wildcard",
			pattern:   "1.4.x",
			wantType:  PatternMinor,
			wantMajor: intPtr(1),
			wantMinor: intPtr(4),
		},
		{
			name:      "exact version",
			pattern:   "1.4.2",
			wantType:  PatternExact,
			wantMajor: intPtr(1),
			wantMinor: intPtr(4),
			wantPatch: intPtr(2),
		},
		{
			name:       "exact version with suffix",
			pattern:    "1.4.2-cuda",
			wantType:   PatternExactSuffix,
			wantMajor:  intPtr(1),
			wantMinor:  intPtr(4),
			wantPatch:  intPtr(2),
			wantSuffix: "cuda",
		},
		{
			name:       "exact version with dashed suffix",
			pattern:    "1.4.2-custom-build-123",
			wantType:   PatternExactSuffix,
			wantMajor:  intPtr(1),
			wantMinor:  intPtr(4),
			wantPatch:  intPtr(2),
			wantSuffix: "custom-build-123",
		},
		{
			name:       "exact version with beta suffix",
			pattern:    "7.1.2+338.7",
			wantType:   PatternExactSuffix,
			wantMajor:  intPtr(7),
			wantMinor:  intPtr(1),
			wantPatch:  intPtr(2),
			wantSuffix: "338.7",
		},
		{
			name:    "empty pattern",
			pattern: "",
			wantErr: true,
		},
		{
			name:    "word is not a pattern",
			pattern: "latest",
			wantErr: true,
		},
		{
			name:    "bare major is not a pattern",
			pattern: "7",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePattern(%q) expected error, got %+v", tt.pattern, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePattern(%q) unexpected error: %v", tt.pattern, err)
			}
			if p.Type != tt.wantType {
				t.Errorf("type = %v, want %v", p.Type, tt.wantType)
			}
			if !intPtrEqual(p.Major, tt.wantMajor) {
				t.Errorf("major = %v, want %v", p.Major, tt.wantMajor)
			}
			if !intPtrEqual(p.Minor, tt.wantMinor) {
				t.Errorf("minor = %v, want %v", p.Minor, tt.wantMinor)
			}
			if !intPtrEqual(p.Patch, tt.wantPatch) {
				t.Errorf("patch = %v, want %v", p.Patch, tt.wantPatch)
			}
			if p.Suffix != tt.wantSuffix {
				t.Errorf("suffix = %q, want %q", p.Suffix, tt.wantSuffix)
			}
		})
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		version string
		want    bool
	}{
		{"default matches anything", "default", "9.9.9-whatever", true},
		{"default matches garbage", "default", "not-a-version", true},
		{"major wildcard matches", "1.x", "1.7.0", true},
		{"major wildcard matches suffix", "1.x", "1.0.3-rocm", true},
		{"major wildcard rejects other major", "1.x", "2.0.0", false},
		{"minor wildcard matches", "1.4.x", "1.4.9", true},
		{"minor wildcard rejects other minor", "1.4.x", "1.5.0", false},
		{"exact matches bare", "1.4.2", "1.4.2", true},
		{"exact matches any suffix", "1.4.2", "1.4.2-cuda", true},
		{"exact rejects other patch", "1.4.2", "1.4.3", false},
		{"exact suffix matches", "1.4.2-cuda", "1.4.2-cuda", true},
		{"exact suffix rejects bare", "1.4.2-cuda", "1.4.2", false},
		{"exact suffix rejects other suffix", "1.4.2-cuda", "1.4.2-rocm", false},
		{"constraint rejects unparseable version", "1.x", "unknown", false},
		{"constraint rejects empty version", "1.x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustParsePattern(tt.pattern)
			if got := p.Matches(tt.version); got != tt.want {
				t.Errorf("pattern %q matches %q = %v, want %v", tt.pattern, tt.version, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0", "1.0.0-beta", -1},
		{"1.0.0-a", "1.0.0-b", -1},
	}

	for _, tt := range tests {
		a, err := Parse(tt.a)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.a, err)
		}
		b, err := Parse(tt.b)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.b, err)
		}
		if got := a.Compare(b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
