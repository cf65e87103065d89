package tokenutil

import "testing"

func TestEstimateFast(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace", "   \n\t ", 0},
		{"single word", "hi", 1},
		{"words dominate", "a b c d e", 5},
		{"runes dominate", "abcdefghijklmnopqrstuvwxyz", 6},
		{"han per rune", "明天下午三點數學課", 9},
		{"mixed han and ascii", "明天 online 數學課", 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateFast(tc.text); got != tc.want {
				t.Fatalf("EstimateFast(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestCountTokensNeverZeroForText(t *testing.T) {
	if got := CountTokens("明天下午三點數學課"); got == 0 {
		t.Fatal("expected nonzero token count for CJK text")
	}
}
