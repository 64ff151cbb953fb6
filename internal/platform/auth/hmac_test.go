package auth

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signedRequest(target, secret, keyName string, body []byte, now time.Time, nonce string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	timestamp := now.UTC().Format(time.RFC3339)
	signature := computeHMAC([]byte(secret), buildCanonicalString(req, body, timestamp, nonce))
	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
	if keyName != "" {
		req.Header.Set(defaultKeyHeader, keyName)
	}
	return req
}

func TestRequireAcceptsValidSignature(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	metrics := &recordingMetrics{}

	verifier := NewHMACVerifier(
		map[string]string{"fulfillment": "fulfillment-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
		WithHMACMetrics(metrics),
	)

	body := []byte(`{"status":"shipped"}`)
	req := signedRequest("/internal/orders/ord-1/status", "fulfillment-secret", "fulfillment", body, now, "nonce-123")

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := HMACMetadataFromContext(r.Context())
		if !ok {
			t.Fatalf("expected hmac metadata in context")
		}
		if meta.SecretName != "fulfillment" {
			t.Fatalf("unexpected secret name %q", meta.SecretName)
		}
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.records) != 1 || !metrics.records[0].success {
		t.Fatalf("expected success metric, got %+v", metrics.records)
	}
}

func TestRequireFallsBackToDefaultSecret(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	verifier := NewHMACVerifier(
		map[string]string{"default": "webhook-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)

	// No key header: verification runs against the default secret.
	body := []byte(`{"status":"processing"}`)
	req := signedRequest("/internal/orders/ord-2/status", "webhook-secret", "", body, now, "nonce-default")

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via default secret, got %d", rr.Code)
	}
}

func TestRequireRejectsUnknownKeyName(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	verifier := NewHMACVerifier(
		map[string]string{"fulfillment": "fulfillment-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)

	body := []byte(`{}`)
	req := signedRequest("/internal/orders/ord-3/status", "fulfillment-secret", "warehouse", body, now, "nonce-x")

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run for unknown key name")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key name, got %d", rr.Code)
	}
}

func TestRequireRejectsReplay(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	verifier := NewHMACVerifier(
		map[string]string{"fulfillment": "fulfillment-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)

	body := []byte(`{"status":"delivered"}`)
	handler := verifier.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest("/internal/orders/ord-4/status", "fulfillment-secret", "fulfillment", body, now, "nonce-replay"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest("/internal/orders/ord-4/status", "fulfillment-secret", "fulfillment", body, now, "nonce-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected with 401, got %d", rr.Code)
	}
}

func TestRequireRejectsSignatureMismatch(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	verifier := NewHMACVerifier(
		map[string]string{"fulfillment": "fulfillment-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)

	// Sign one body, send another.
	req := signedRequest("/internal/orders/ord-5/status", "fulfillment-secret", "fulfillment", []byte(`{"status":"shipped"}`), now, "nonce-tamper")
	req.Body = httptest.NewRequest(http.MethodPost, "/internal/orders/ord-5/status", bytes.NewReader([]byte(`{"status":"delivered"}`))).Body

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be invoked on signature mismatch")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on signature mismatch, got %d", rr.Code)
	}
}

func TestRequireRejectsTimestampSkew(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	verifier := NewHMACVerifier(
		map[string]string{"fulfillment": "fulfillment-secret"},
		NewInMemoryNonceStore(),
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	)

	body := []byte(`{"status":"shipped"}`)
	req := signedRequest("/internal/orders/ord-6/status", "fulfillment-secret", "fulfillment", body, now.Add(-10*time.Minute), "nonce-old")

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called when timestamp is skewed")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on timestamp skew, got %d", rr.Code)
	}
}

func TestRequireWithoutSecretsIsUnavailable(t *testing.T) {
	verifier := NewHMACVerifier(nil, NewInMemoryNonceStore(), WithHMACLogger(noopLogger{}))

	rr := httptest.NewRecorder()
	verifier.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run without secrets")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/orders/ord-7/status", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without configured secrets, got %d", rr.Code)
	}
}
