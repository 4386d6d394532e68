package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  zerolog.Level
	}{
		{"trace", "trace", zerolog.TraceLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"empty falls back", "", zerolog.InfoLevel},
		{"unknown falls back", "verbose", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.want {
				t.Fatalf("ParseLevel(%q) = %v; want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{Format: "json"}

	zl := zerolog.New(l.writer(&buf))
	zl.Info().Str("dataset", "parks").Msg("done")

	want := `{"level":"info","dataset":"parks","message":"done"}` + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("json writer output = %q; want %q", got, want)
	}
}
