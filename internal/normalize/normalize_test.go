package normalize

import "testing"

func TestUsername(t *testing.T) {
	in := "  Alice.DOE  "
	want := "alice.doe"
	got := Username(in)
	if got != want {
		t.Fatalf("Normalize.Username(%q) = %q, want %q", in, got, want)
	}
}

func TestText(t *testing.T) {
	if got := Text(" \t\n "); got != "" {
		t.Fatalf("Text on whitespace = %q, want empty", got)
	}
	if got := Text("  hi bob "); got != "hi bob" {
		t.Fatalf("Text = %q, want %q", got, "hi bob")
	}
}
