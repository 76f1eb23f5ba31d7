package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := map[string]string{
		"  hello ":                         "hello",
		"<b>kitchen</b> vent":              "kitchen vent",
		`<script>alert("x")</script>room`: "room",
		"a & b":                            "a & b",
	}
	for in, want := range cases {
		if got := Text(in); got != want {
			t.Errorf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionalText(t *testing.T) {
	if OptionalText(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
	blank := "<i></i>  "
	if OptionalText(&blank) != nil {
		t.Fatalf("blank text should become nil")
	}
	msg := "join us"
	if got := OptionalText(&msg); got == nil || *got != "join us" {
		t.Fatalf("unexpected %v", got)
	}
}
