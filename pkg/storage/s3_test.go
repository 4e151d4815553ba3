package storage

import "testing"

func TestRecordingKey(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{"video/mp4;codecs=h264,aac", "recordings/ABC234/rec1.mp4"},
		{"video/webm", "recordings/ABC234/rec1.webm"},
		{"VIDEO/WEBM; codecs=vp8,opus", "recordings/ABC234/rec1.webm"},
		{"application/octet-stream", "recordings/ABC234/rec1.bin"},
	}
	for _, tc := range cases {
		if got := RecordingKey("ABC234", "rec1", tc.mime); got != tc.want {
			t.Fatalf("RecordingKey(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}
