package integrity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"        //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"  //nolint:staticcheck
	"github.com/ProtonMail/go-crypto/openpgp/packet" //nolint:staticcheck
)

const armoredSignatureType = "PGP SIGNATURE"

// ErrNotSignature means the data decodes but carries no signature packet.
var ErrNotSignature = errors.New("no signature packet")

// SignatureInfo describes a detached signature.
type SignatureInfo struct {
	// KeyID is the issuer key ID in upper-case hex, if the packet carries one.
	KeyID   string
	Created time.Time
	Hash    string
	// Verified is true only when the signature was checked against a keyring.
	Verified bool
}

// InspectSignature checks that sig is an armored detached OpenPGP signature
// and returns what its first packet declares. Nothing is verified.
func InspectSignature(sig []byte) (*SignatureInfo, error) {
	block, err := armor.Decode(bytes.NewReader(sig))
	if err != nil {
		return nil, fmt.Errorf("decode armor: %w", err)
	}
	if block.Type != armoredSignatureType {
		return nil, fmt.Errorf("armor block is %q, want %q", block.Type, armoredSignatureType)
	}

	p, err := packet.NewReader(block.Body).Next()
	if err != nil {
		return nil, fmt.Errorf("read packet: %w", err)
	}
	s, ok := p.(*packet.Signature)
	if !ok {
		return nil, fmt.Errorf("%w: first packet is %T", ErrNotSignature, p)
	}

	info := &SignatureInfo{Created: s.CreationTime, Hash: s.Hash.String()}
	if s.IssuerKeyId != nil {
		info.KeyID = fmt.Sprintf("%016X", *s.IssuerKeyId)
	}
	return info, nil
}

// ReadKeyring loads an armored or binary public keyring.
func ReadKeyring(data []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		// Try reading as non-armored keyring
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// VerifyDetached checks sig (armored or binary) over data against keyring.
func VerifyDetached(keyring openpgp.EntityList, data io.Reader, sig []byte) (*SignatureInfo, error) {
	var (
		signer *openpgp.Entity
		err    error
	)
	if strings.HasPrefix(strings.TrimSpace(string(sig)), "-----BEGIN PGP SIGNATURE") {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, data, bytes.NewReader(sig), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, data, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}

	info := &SignatureInfo{Verified: true}
	if inspected, ierr := InspectSignature(sig); ierr == nil {
		info = inspected
		info.Verified = true
	}
	if info.KeyID == "" && signer != nil && signer.PrimaryKey != nil {
		info.KeyID = signer.PrimaryKey.KeyIdString()
	}
	return info, nil
}
