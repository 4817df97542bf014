package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "shadowpayd", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("hello", slog.String("address", "abc"), MaskField("seed", "order-7"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "hello" || line["severity"] != "INFO" {
		t.Fatalf("unexpected envelope: %v", line)
	}
	if line["service"] != "shadowpayd" || line["env"] != "test" {
		t.Fatalf("missing service attributes: %v", line)
	}
	if line["address"] != "abc" {
		t.Fatalf("allowlisted field masked: %v", line)
	}
	if line["seed"] != RedactedValue {
		t.Fatalf("seed not redacted: %v", line)
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("secret_seed", "x").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("Amount", "10").Value.String(); got != "10" {
		t.Fatalf("allowlisted key masked: %q", got)
	}
	if got := MaskField("seed", " ").Value.String(); got != " " {
		t.Fatalf("empty value should pass through, got %q", got)
	}
	if MaskValue("abc") != RedactedValue || MaskValue("") != "" {
		t.Fatalf("MaskValue mismatch")
	}
}

func TestSetupRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(&buf, "shadowpayd", "", slog.LevelInfo)
	logger.Info("create",
		slog.String("seed", "order-7"),
		slog.String("jwt_token", "abc.def"),
		slog.Any("private_key", []byte{1, 2}),
		slog.String("secret_seed", ""),
		slog.String("receiver", "5vd7"),
		slog.Int("allocations", 2))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for _, key := range []string{"seed", "jwt_token", "private_key"} {
		if line[key] != RedactedValue {
			t.Fatalf("%s not redacted: %v", key, line)
		}
	}
	if line["secret_seed"] != "" {
		t.Fatalf("empty value should pass through: %v", line)
	}
	if line["receiver"] != "5vd7" || line["allocations"] != float64(2) {
		t.Fatalf("ordinary fields altered: %v", line)
	}
}

func TestIsSensitive(t *testing.T) {
	for _, key := range []string{"seed", "Secret_Seed", "passphrase", "Authorization", "webhook_secret"} {
		if !IsSensitive(key) {
			t.Fatalf("%q should be sensitive", key)
		}
	}
	for _, key := range []string{"address", "amount", "height", "program"} {
		if IsSensitive(key) {
			t.Fatalf("%q should not be sensitive", key)
		}
	}
}
