package objstore

import "testing"

func TestSafeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"SERVICE_QUOTE_Q-1001.pdf", "SERVICE_QUOTE_Q-1001.pdf"},
		{"report", "report.pdf"},
		{"  spaced \n name ", "spaced   name.pdf"},
		{"", "document.pdf"},
		{"UPPER.PDF", "UPPER.PDF"},
	}
	for _, tc := range cases {
		if got := SafeFilename(tc.in); got != tc.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
