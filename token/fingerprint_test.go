package token

import "testing"

func TestFingerprintIsDeterministic(t *testing.T) {
	salt := []byte("salt-a")
	b := Binding{IP: "198.51.100.7", UserAgent: "credit-cli/1.4"}

	first := Fingerprint(salt, b)
	second := Fingerprint(salt, b)
	if first == "" {
		t.Fatal("empty fingerprint")
	}
	if first != second {
		t.Fatalf("fingerprint not stable: %q vs %q", first, second)
	}

	if got := Fingerprint(salt, Binding{IP: "203.0.113.9", UserAgent: b.UserAgent}); got == first {
		t.Fatal("different ip should change the fingerprint")
	}
	if got := Fingerprint(salt, Binding{IP: b.IP, UserAgent: "curl/8.0"}); got == first {
		t.Fatal("different agent should change the fingerprint")
	}
	if got := Fingerprint([]byte("salt-b"), b); got == first {
		t.Fatal("different salt should change the fingerprint")
	}
}

func TestFingerprintFieldBoundary(t *testing.T) {
	salt := []byte("salt")

	// "1.2.3.4" + "ab" must not collide with "1.2.3.4a" + "b".
	left := Fingerprint(salt, Binding{IP: "1.2.3.4", UserAgent: "ab"})
	right := Fingerprint(salt, Binding{IP: "1.2.3.4a", UserAgent: "b"})
	if left == right {
		t.Fatal("field boundary collision")
	}
}

func TestFingerprintMatch(t *testing.T) {
	salt := []byte("salt")
	b := Binding{IP: "198.51.100.7", UserAgent: "credit-cli/1.4"}

	if !fingerprintMatch(salt, b, Fingerprint(salt, b)) {
		t.Fatal("matching binding rejected")
	}
	if fingerprintMatch(salt, Binding{IP: "203.0.113.9", UserAgent: b.UserAgent}, Fingerprint(salt, b)) {
		t.Fatal("mismatched binding accepted")
	}
	if fingerprintMatch(salt, b, "") {
		t.Fatal("empty embedded fingerprint accepted")
	}
}
