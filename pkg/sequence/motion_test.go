package sequence

import "testing"

func TestMatcherScoresByKeywordLength(t *testing.T) {
	m := NewMatcherWithTaxonomy([]MotionType{
		{ID: "happy", Keywords: []string{"开心", "哈哈"}},
		{ID: "sad", Keywords: []string{"难过"}},
	})

	// Two matched keywords outweigh any single match for another type.
	if got := m.Match("太开心了，哈哈"); got != "happy" {
		t.Errorf("Match() = %q, want happy", got)
	}
}

func TestMatcherDefaultsToIdle(t *testing.T) {
	m := NewMatcher()
	for _, text := range []string{"", "   ", "completely neutral text"} {
		if got := m.Match(text); got != MotionTypeIdle {
			t.Errorf("Match(%q) = %q, want idle", text, got)
		}
	}
}

func TestMatcherCaseInsensitive(t *testing.T) {
	m := NewMatcherWithTaxonomy([]MotionType{
		{ID: "greet", Keywords: []string{"Hello"}},
	})
	if got := m.Match("well HELLO there"); got != "greet" {
		t.Errorf("Match() = %q, want greet", got)
	}
}

func TestMatcherTieBreaksByOrder(t *testing.T) {
	m := NewMatcherWithTaxonomy([]MotionType{
		{ID: "first", Keywords: []string{"同分"}},
		{ID: "second", Keywords: []string{"同分"}},
	})
	if got := m.Match("同分文本"); got != "first" {
		t.Errorf("Match() = %q, want first on tie", got)
	}
}

func TestMatcherBuiltinTaxonomy(t *testing.T) {
	m := NewMatcher()
	cases := []struct {
		text string
		want string
	}{
		{"谢谢你帮了大忙", "thanks"},
		{"对不起，是我错怪你了", "apology"},
		{"再见，下次见", "goodbye"},
	}
	for _, tc := range cases {
		if got := m.Match(tc.text); got != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
