package privacylog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSanitizeRedactsTokenMaterial(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("login",
		"jwt", "eyJhbGciOi.secret.payload",
		"salt", "1234567890",
		"ephemeral_key", "c2VjcmV0",
	)

	out := buf.String()
	for _, leaked := range []string{"eyJhbGciOi", "1234567890", "c2VjcmV0"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("sensitive value %q leaked into log output: %s", leaked, out)
		}
	}
	if !strings.Contains(out, redactedValue) {
		t.Fatalf("expected redaction marker in output: %s", out)
	}
}

func TestSanitizeFingerprintsAddresses(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(WrapHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("mint", "address", "0xabc123")

	out := buf.String()
	if strings.Contains(out, "0xabc123") {
		t.Fatalf("address leaked into log output: %s", out)
	}
	if !strings.Contains(out, "address_fp=fp_") {
		t.Fatalf("expected fingerprinted address attr: %s", out)
	}
}

func TestFingerprintStableWithinProcess(t *testing.T) {
	a := Fingerprint("0xabc")
	b := Fingerprint("0xabc")
	if a == "" || a != b {
		t.Fatalf("fingerprint should be stable within one process: %q vs %q", a, b)
	}
	if Fingerprint("0xdef") == a {
		t.Fatal("distinct values should not collide trivially")
	}
}
