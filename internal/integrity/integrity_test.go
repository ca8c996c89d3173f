package integrity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

func TestSHA256(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	if got := SHA256Bytes([]byte("abc")); got != want {
		t.Errorf("SHA256Bytes() = %s, want %s", got, want)
	}

	path := filepath.Join(t.TempDir(), "abc")
	if err := os.WriteFile(path, []byte("abc"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File() unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("SHA256File() = %s, want %s", got, want)
	}

	if _, err := SHA256File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("SHA256File() expected error for missing file")
	}
}

func TestIsSHA256Hex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a", 64), true},
		{strings.Repeat("F", 64), true},
		{strings.Repeat("a", 63), false},
		{strings.Repeat("a", 65), false},
		{strings.Repeat("g", 64), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSHA256Hex(tt.in); got != tt.want {
			t.Errorf("IsSHA256Hex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindChecksum(t *testing.T) {
	digest := strings.Repeat("c", 64)

	tests := []struct {
		name     string
		listing  string
		filename string
		want     string
		wantErr  error
	}{
		{
			name:     "exact",
			listing:  digest + "  channel-rust-stable.toml\n",
			filename: "channel-rust-stable.toml",
			want:     digest,
		},
		{
			name:     "binary_marker",
			listing:  digest + " *channel-rust-stable.toml\n",
			filename: "channel-rust-stable.toml",
			want:     digest,
		},
		{
			name:     "path_basename",
			listing:  strings.Repeat("d", 64) + "  other.toml\n" + digest + "  dist/channel-rust-stable.toml\n",
			filename: "channel-rust-stable.toml",
			want:     digest,
		},
		{
			name:     "bare_digest",
			listing:  digest + "\n",
			filename: "anything",
			want:     digest,
		},
		{
			name:     "not_found",
			listing:  digest + "  other.toml\n",
			filename: "channel-rust-stable.toml",
			wantErr:  ErrChecksumNotFound,
		},
		{
			name:     "empty",
			listing:  "",
			filename: "channel-rust-stable.toml",
			wantErr:  ErrChecksumNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindChecksum(strings.NewReader(tt.listing), tt.filename)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FindChecksum() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindChecksum() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FindChecksum() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMatchSHA256(t *testing.T) {
	a := strings.Repeat("a", 64)
	if err := MatchSHA256(a, strings.ToUpper(a)); err != nil {
		t.Errorf("MatchSHA256() case-insensitive match error: %v", err)
	}
	if err := MatchSHA256(a, strings.Repeat("b", 64)); err == nil {
		t.Error("MatchSHA256() expected mismatch error")
	}
	if err := MatchSHA256(a, "short"); err == nil {
		t.Error("MatchSHA256() expected error for malformed digest")
	}
}

// signed creates a throwaway key, signs message and returns the armored
// public key and detached signature.
func signed(t *testing.T, message []byte) (pubKey, sig []byte) {
	t.Helper()

	entity, err := openpgp.NewEntity("preflight test", "", "test@example.com", nil)
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	var sigBuf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sigBuf, entity, bytes.NewReader(message), nil); err != nil {
		t.Fatalf("sign: %v", err)
	}

	var keyBuf bytes.Buffer
	w, err := armor.Encode(&keyBuf, "PGP PUBLIC KEY BLOCK", nil)
	if err != nil {
		t.Fatalf("armor encode: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("serialize key: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close armor: %v", err)
	}

	return keyBuf.Bytes(), sigBuf.Bytes()
}

func TestInspectSignature(t *testing.T) {
	message := []byte("manifest-version = \"2\"\n")
	pubKey, sig := signed(t, message)

	info, err := InspectSignature(sig)
	if err != nil {
		t.Fatalf("InspectSignature() unexpected error: %v", err)
	}
	if info.KeyID == "" {
		t.Error("InspectSignature() returned no issuer key ID")
	}
	if info.Created.IsZero() {
		t.Error("InspectSignature() returned no creation time")
	}
	if info.Verified {
		t.Error("InspectSignature() must not claim verification")
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not_armored", []byte("<html>404</html>")},
		{"public_key_block", pubKey},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := InspectSignature(tt.data); err == nil {
				t.Error("InspectSignature() expected error")
			}
		})
	}
}

func TestVerifyDetached(t *testing.T) {
	message := []byte("manifest-version = \"2\"\n")
	pubKey, sig := signed(t, message)

	keyring, err := ReadKeyring(pubKey)
	if err != nil {
		t.Fatalf("ReadKeyring() unexpected error: %v", err)
	}

	info, err := VerifyDetached(keyring, bytes.NewReader(message), sig)
	if err != nil {
		t.Fatalf("VerifyDetached() unexpected error: %v", err)
	}
	if !info.Verified {
		t.Error("VerifyDetached() Verified = false")
	}
	if info.KeyID != keyring[0].PrimaryKey.KeyIdString() {
		t.Errorf("VerifyDetached() KeyID = %s, want %s", info.KeyID, keyring[0].PrimaryKey.KeyIdString())
	}

	if _, err := VerifyDetached(keyring, bytes.NewReader([]byte("tampered")), sig); err == nil {
		t.Error("VerifyDetached() expected error for tampered data")
	}

	otherKey, _ := signed(t, message)
	otherRing, err := ReadKeyring(otherKey)
	if err != nil {
		t.Fatalf("ReadKeyring() unexpected error: %v", err)
	}
	if _, err := VerifyDetached(otherRing, bytes.NewReader(message), sig); err == nil {
		t.Error("VerifyDetached() expected error for unknown signer")
	}
}

func TestReadKeyringRejectsGarbage(t *testing.T) {
	if _, err := ReadKeyring([]byte("not a key")); err == nil {
		t.Error("ReadKeyring() expected error")
	}
}
