package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestRedactAttributesDefaults(t *testing.T) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.header.authorization", "Bearer secret"),
		attribute.String(AttrRequestText, "Transfer funds to account 1234"),
		attribute.String("safe.field", "value"),
	}

	filtered := RedactAttributes(attrs, nil)

	if len(filtered) != 1 {
		t.Fatalf("expected 1 attribute after redaction, got %d", len(filtered))
	}
	if filtered[0].Key != "safe.field" {
		t.Fatalf("unexpected attribute %q present after redaction", filtered[0].Key)
	}
}

func TestRedactAttributesStrategies(t *testing.T) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRequestText, "Transfer funds to account 1234"),
		attribute.String("user.email", "person@example.com"),
		attribute.String("custom.secret", "top-secret"),
		attribute.String("note", "x"),
	}

	filtered := RedactAttributes(attrs, map[string]string{
		AttrRequestText: RedactHash,
		"user.email":    RedactMask,
		"custom.secret": RedactDrop,
		"note":          "replace",
	})

	if len(filtered) != 3 {
		t.Fatalf("expected 3 attributes after redaction, got %d", len(filtered))
	}

	for _, kv := range filtered {
		switch kv.Key {
		case AttrRequestText:
			if got := kv.Value.AsString(); !strings.HasPrefix(got, "[REDACTED:sha256:") {
				t.Fatalf("unexpected hashed request text %q", got)
			}
		case "user.email":
			if got := kv.Value.AsString(); got != "pers***.com" {
				t.Fatalf("unexpected masked email %q", got)
			}
		case "note":
			if got := kv.Value.AsString(); got != "[REDACTED]" {
				t.Fatalf("unexpected replaced note %q", got)
			}
		default:
			t.Fatalf("unexpected attribute %q present after redaction", kv.Key)
		}
	}
}

func TestRedactAttributesKeep(t *testing.T) {
	attrs := []attribute.KeyValue{attribute.String(AttrRequestText, "hello")}

	filtered := RedactAttributes(attrs, map[string]string{AttrRequestText: RedactKeep})
	if len(filtered) != 1 || filtered[0].Value.AsString() != "hello" {
		t.Fatalf("expected request text to be kept, got %v", filtered)
	}
}
