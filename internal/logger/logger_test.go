package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewFromConfig_ServiceAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	log := NewFromConfig(LoggingConfig{Level: "info"}).Output(&buf)

	log.Info().Msg("order confirmed")

	entry := decodeEntry(t, &buf)
	if entry["service"] != ServiceName {
		t.Errorf("service = %v, want %s", entry["service"], ServiceName)
	}
	if entry["message"] != "order confirmed" {
		t.Errorf("message = %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing time field")
	}
}

func TestNewFromConfig_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run("level="+tt.level, func(t *testing.T) {
			if got := NewFromConfig(LoggingConfig{Level: tt.level}).GetLevel(); got != tt.want {
				t.Errorf("GetLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_DelegatesToConfig(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn").Output(&buf)

	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	log.Warn().Msg("kept")
	if decodeEntry(t, &buf)["service"] != ServiceName {
		t.Error("expected service field on New logger")
	}
}

func TestNewFromConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log := NewFromConfig(LoggingConfig{Level: "debug", Output: OutputFile, FilePath: path, MaxSizeMB: 1, MaxFiles: 1})
	log.Debug().Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q, want message", data)
	}
}

func TestNewFromConfig_TeeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log := NewFromConfig(LoggingConfig{Output: OutputTee, FilePath: path, MaxSizeMB: 1})
	log.Info().Msg("teed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "teed") {
		t.Errorf("log file = %q, want message", data)
	}
}

func TestWriterFor_Console(t *testing.T) {
	if _, ok := writerFor(LoggingConfig{Output: OutputConsole}).(zerolog.ConsoleWriter); !ok {
		t.Error("expected a console writer")
	}
	if writerFor(LoggingConfig{}) != os.Stdout {
		t.Error("expected stdout by default")
	}
}

func TestFromContext(t *testing.T) {
	t.Run("stored logger with correlation id", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(t.Context(), New("info").Output(&buf))
		ctx = WithCorrelationID(ctx, "req-42")

		if got := CorrelationIDFromContext(ctx); got != "req-42" {
			t.Fatalf("CorrelationIDFromContext() = %q", got)
		}
		l := FromContext(ctx)
		l.Info().Msg("handled")
		if got := decodeEntry(t, &buf)["correlation_id"]; got != "req-42" {
			t.Errorf("correlation_id = %v, want req-42", got)
		}
	})

	t.Run("fallback logger", func(t *testing.T) {
		var buf bytes.Buffer
		l := FromContext(t.Context()).Output(&buf)
		l.Info().Msg("fallback")
		if buf.Len() == 0 {
			t.Error("fallback logger wrote nothing")
		}
		if CorrelationIDFromContext(t.Context()) != "" {
			t.Error("expected empty correlation id")
		}
	})
}

func TestNewCorrelationID_Unique(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	if a == b || len(strings.Split(a, "-")) != 5 {
		t.Errorf("ids %q and %q are not distinct UUIDs", a, b)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := map[string]string{
		"tok_abcdef123456": "****3456",
		"abcd":             "****",
		"":                 "****",
	}
	for in, want := range tests {
		if got := MaskCredential(in); got != want {
			t.Errorf("MaskCredential(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestForCredential(t *testing.T) {
	var buf bytes.Buffer
	log := ForCredential(New("info").Output(&buf), "acc-1", "secret-token-9876")
	log.Info().Msg("polled")

	if strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("credential leaked: %s", buf.String())
	}
	entry := decodeEntry(t, &buf)
	if entry["credential"] != "****9876" || entry["account_id"] != "acc-1" {
		t.Errorf("unexpected fields: %v", entry)
	}

	buf.Reset()
	noAccount := ForCredential(New("info").Output(&buf), "", "secret-token-9876")
	noAccount.Info().Msg("polled")
	if _, ok := decodeEntry(t, &buf)["account_id"]; ok {
		t.Error("account_id set for empty account")
	}
}
