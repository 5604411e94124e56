package filter

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  padded  ", "padded"},
		{"<b>bold</b> text", "bold text"},
		{"<script>alert(1)</script>", "alert(1)"},
		{" <br> hi <br> ", "hi"},
		{"tab\there", "tabhere"},
		{"line\nbreak", "linebreak"},
		{"nul\x00byte", "nulbyte"},
		{"c1\u0085\u009fend", "c1end"},
		{"a < b", "a < b"},
		{"<<a>b>", "b>"},
		{"<unterminated", "<unterminated"},
		{"olá, ação", "olá, ação"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"<<a>b>",
		"<a<b>>",
		" \x01<i> x </i>\x7f ",
		"x<\n>y",
		"<\x00>z",
		" <p> ",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestChain_Order(t *testing.T) {
	c := NewChain(TrimSpace, StripTags)
	// Trimming first leaves the space that was inside the tag boundary.
	if got := c.Apply("<b> x"); got != " x" {
		t.Errorf("expected %q, got %q", " x", got)
	}
	if got := Sanitize("<b> x"); got != "x" {
		t.Errorf("expected %q, got %q", "x", got)
	}
}

func FuzzSanitize(f *testing.F) {
	for _, seed := range []string{"", "<a>", " x ", "<<a>b>", "\x00\x1f\x7f\u0085", "a<b>c</d>e"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		once := Sanitize(s)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", s, once, twice)
		}
	})
}
