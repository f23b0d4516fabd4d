package crypto

import "testing"

func TestFingerprint_NormalizesFormatting(t *testing.T) {
	f := NewFingerprinter([]byte("fingerprint-key"))

	a := f.Fingerprint("666-66-1234")
	b := f.Fingerprint("666661234")
	if a == "" || a != b {
		t.Fatalf("formatting must not change the fingerprint: %q vs %q", a, b)
	}
}

func TestFingerprint_Keyed(t *testing.T) {
	a := NewFingerprinter([]byte("key-a")).Fingerprint("666-66-1234")
	b := NewFingerprinter([]byte("key-b")).Fingerprint("666-66-1234")
	if a == b {
		t.Fatalf("different keys must produce different fingerprints")
	}
}

func TestFingerprint_EmptyValue(t *testing.T) {
	f := NewFingerprinter([]byte("fingerprint-key"))
	if got := f.Fingerprint(""); got != "" {
		t.Fatalf("empty value: want empty fingerprint, got %q", got)
	}
	if got := f.Fingerprint("---"); got != "" {
		t.Fatalf("no digits: want empty fingerprint, got %q", got)
	}
}
