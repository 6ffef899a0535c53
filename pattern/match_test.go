package pattern

import "testing"

func TestMatches(t *testing.T) {
	var tests = []struct {
		s, glob string
		want    bool
	}{
		{"anything", "", true},
		{"hwc", "hwc", true},
		{"HWC", "hwc", true},
		{"hwc", "h*", true},
		{"hwc", "*c", true},
		{"hwc", "*w*", true},
		{"hwc", "mc*", false},
		{"temp", "t*p", true},
		{"temp", "t*x", false},
		{"", "*", true},
		{"", "x", false},
	}
	for _, tt := range tests {
		if got := Matches(tt.s, tt.glob); got != tt.want {
			t.Errorf("Matches(%q, %q): Wanted %v, got %v", tt.s, tt.glob, tt.want, got)
		}
	}
}
