package integrity

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	payload := []byte(`{"token":"abc","round_id":"r0","answer":"hello"}`)

	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !s.Verify(payload, sig) {
		t.Error("Expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	payload := []byte(`{"answer":"hello"}`)

	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if s.Verify([]byte(`{"answer":"hacked"}`), sig) {
		t.Error("Expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	payload := []byte(`{"answer":"hello"}`)
	sig, err := NewSigner([]byte("key-one")).Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if NewSigner([]byte("key-two")).Verify(payload, sig) {
		t.Error("Expected signature from a different key to fail")
	}
}

func TestCanonicalizationIsKeyOrderStable(t *testing.T) {
	s := NewSigner([]byte("test-secret"))

	a, err := s.Sign([]byte(`{"a": 1, "b": "two"}`))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	b, err := s.Sign([]byte(`{"b":"two","a":1}`))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if a != b {
		t.Errorf("Expected equal signatures for reordered keys, got %q vs %q", a, b)
	}
}

func TestCanonicalizeStripsWhitespace(t *testing.T) {
	got, err := Canonicalize([]byte(`{ "b" : 2 , "a" : 1 }`))
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(got) != `{"a":1,"b":2}` {
		t.Errorf("Expected compact sorted form, got %s", got)
	}
}

func TestShortSecretIsStretched(t *testing.T) {
	s := NewSigner([]byte("short"))
	if len(s.key) != 32 {
		t.Errorf("Expected 32-byte derived key, got %d bytes", len(s.key))
	}

	payload := []byte(`{"answer":"hello"}`)
	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !s.Verify(payload, sig) {
		t.Error("Expected signature from stretched key to verify")
	}
}

func TestVerifyRejectsMalformedPayload(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	if s.Verify([]byte(`not-json`), "deadbeef") {
		t.Error("Expected malformed payload to fail verification")
	}
}
