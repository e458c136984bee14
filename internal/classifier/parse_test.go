package classifier

import (
	"errors"
	"testing"
)

func TestDecodeModelJSON_plain(t *testing.T) {
	var out struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	}
	if err := decodeModelJSON(`{"category": "road", "severity": "high"}`, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Category != "road" || out.Severity != "high" {
		t.Errorf("got %+v", out)
	}
}

// A fenced response must parse identically to the same JSON unwrapped.
func TestDecodeModelJSON_fencedRoundTrip(t *testing.T) {
	plain := `{"category": "garbage", "severity": "medium"}`
	fenced := "```json\n" + plain + "\n```"

	var a, b struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	}
	if err := decodeModelJSON(plain, &a); err != nil {
		t.Fatalf("decode plain: %v", err)
	}
	if err := decodeModelJSON(fenced, &b); err != nil {
		t.Fatalf("decode fenced: %v", err)
	}
	if a != b {
		t.Errorf("fenced result %+v differs from plain %+v", b, a)
	}
}

func TestDecodeModelJSON_extractsEmbeddedObject(t *testing.T) {
	raw := `Sure! Here is the classification: {"category": "water", "severity": "low"} — let me know if you need more.`
	var out struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	}
	if err := decodeModelJSON(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Category != "water" || out.Severity != "low" {
		t.Errorf("got %+v", out)
	}
}

func TestDecodeModelJSON_malformedCarriesRaw(t *testing.T) {
	raw := "I could not classify this image."
	var out struct{}
	err := decodeModelJSON(raw, &out)
	if !IsKind(err, KindMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Raw != raw {
		t.Errorf("expected raw text preserved, got %+v", ce)
	}
}

func TestExtractObject_bracesInsideStrings(t *testing.T) {
	s := `noise {"reason": "brace } inside", "is_valid": false} trailer`
	sub, ok := extractObject(s)
	if !ok {
		t.Fatal("expected an object")
	}
	if sub != `{"reason": "brace } inside", "is_valid": false}` {
		t.Errorf("got %q", sub)
	}
}

func TestExtractObject_nested(t *testing.T) {
	s := `x {"a": {"b": 1}} y`
	sub, ok := extractObject(s)
	if !ok || sub != `{"a": {"b": 1}}` {
		t.Errorf("got %q, %v", sub, ok)
	}
}

func TestExtractObject_none(t *testing.T) {
	if _, ok := extractObject("no braces here"); ok {
		t.Error("expected no object")
	}
	if _, ok := extractObject(`{"unterminated": true`); ok {
		t.Error("expected no object for unbalanced braces")
	}
}

func TestParseRetryDelay(t *testing.T) {
	secs, ok := parseRetryDelay("429 RESOURCE_EXHAUSTED: please retry in 7.5 seconds")
	if !ok || secs != 7.5 {
		t.Errorf("got %v, %v", secs, ok)
	}
	secs, ok = parseRetryDelay("Retry in 12")
	if !ok || secs != 12 {
		t.Errorf("got %v, %v", secs, ok)
	}
	if _, ok := parseRetryDelay("quota exceeded"); ok {
		t.Error("expected no delay parsed")
	}
}

func TestStripFences(t *testing.T) {
	if got := stripFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
	if got := stripFences(`{"a":1}`); got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}
