package mqtt

import "testing"

func TestResolveTopic(t *testing.T) {
	tests := []struct {
		base, typ string
		want      string
	}{
		{"a/b/", "x", "a/b/x"},
		{"a/b", "x", "a/b/x"},
		{"", "x", "/x"},
		{"/", "rates", "/rates"},
		{"a/b//", "x", "a/b//x"},
		{"trunk-recorder", "call_start", "trunk-recorder/call_start"},
	}
	for _, tt := range tests {
		if got := ResolveTopic(tt.base, tt.typ); got != tt.want {
			t.Errorf("ResolveTopic(%q, %q) = %q, want %q", tt.base, tt.typ, got, tt.want)
		}
	}
}
