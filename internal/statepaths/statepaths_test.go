package statepaths

import (
	"strings"
	"testing"
)

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"sess-1", "sess-1"},
		{"Sess_2.a", "Sess_2.a"},
		{"", "default"},
		{"   ", "default"},
		{"../../etc/passwd", "-..-etc-passwd"},
		{"a b/c", "a-b-c"},
	}
	for _, tc := range cases {
		if got := sanitizeSessionID(tc.in); got != tc.want {
			t.Fatalf("sanitizeSessionID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQueuePathStaysUnderQueuesDir(t *testing.T) {
	t.Parallel()

	got := QueuePath("../../escape")
	if !strings.HasPrefix(got, QueuesDir()) {
		t.Fatalf("QueuePath() = %q, escapes %q", got, QueuesDir())
	}
}
