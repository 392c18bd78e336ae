package intent

import "testing"

func TestExtractBarcode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "ean13", text: "barcode 4006381333931 please", want: "4006381333931"},
		{name: "ean8", text: "96385074", want: "96385074"},
		{name: "first of two", text: "12345678 and 87654321", want: "12345678"},
		{name: "too short", text: "1234567", want: ""},
		{name: "too long", text: "123456789012345", want: ""},
		{name: "glued to letters", text: "abc12345678", want: ""},
		{name: "empty", text: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractBarcode(tt.text); got != tt.want {
				t.Errorf("ExtractBarcode(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLooksLikeAgentEcho(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"I cannot identify the product yet, sorry", true},
		{"Ich kann das Produkt nicht sicher erkennen", true},
		{"you said the product is unclear so please tell me again what you see now", true},
		{"nutella", false},
		{"", false},
		{"please show product", false},
	}
	for _, tt := range tests {
		if got := LooksLikeAgentEcho(tt.text); got != tt.want {
			t.Errorf("LooksLikeAgentEcho(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "bare greeting", text: "  Hello ", want: ""},
		{name: "empty", text: "   ", want: ""},
		{name: "lays apostrophe", text: "Lay's Classic please", want: LaysQuery},
		{name: "lace misheard", text: "lace chips packet", want: LaysQuery},
		{name: "chips yellow", text: "the yellow chips", want: LaysQuery},
		{name: "filler stripped", text: "Please show the Milka chocolate bar", want: "milka chocolate bar"},
		{name: "punctuation removed", text: "Ritter-Sport, Nuss!", want: "rittersport nuss"},
		{name: "umlauts kept", text: "Kölln Müsli, bitte", want: "kölln müsli"},
		{name: "truncated", text: "one two three four five six seven", want: "one two three four five six"},
		{name: "brand corrected", text: "please nutela", want: "nutella"},
		{name: "echo dropped", text: "I cannot identify the product yet", want: ""},
		{name: "only filler", text: "can you show the product", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeQuery(tt.text); got != tt.want {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizeQueryN_CustomLimit(t *testing.T) {
	t.Parallel()
	if got := NormalizeQueryN("one two three four", 2); got != "one two" {
		t.Errorf("NormalizeQueryN() = %q, want %q", got, "one two")
	}
	if got := NormalizeQueryN("one two three four", 0); got != "one two three four" {
		t.Errorf("NormalizeQueryN(0) = %q, want untruncated", got)
	}
}

func TestIsLowSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"product", true},
		{"this pack", true},
		{"milka", false},
		{"product milka", false},
		{"this that thing", false},
	}
	for _, tt := range tests {
		if got := IsLowSignal(tt.query); got != tt.want {
			t.Errorf("IsLowSignal(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestIsVoiceNoise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"can you see this", true},
		{"show me the milka", true},
		{"xyz", true},
		{"apple", false},
		{"lays", false},
		{"12345", false},
		{"milka chocolate", false},
		{"ritter sport marzipan", false},
	}
	for _, tt := range tests {
		if got := IsVoiceNoise(tt.text); got != tt.want {
			t.Errorf("IsVoiceNoise(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
