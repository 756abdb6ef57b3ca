package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when encoding identities.
type AddressPrefix string

const (
	// AccountPrefix is used for participant and operator identities.
	AccountPrefix AddressPrefix = "stk"
	// ProgramPrefix is used for program custody identities.
	ProgramPrefix AddressPrefix = "stkp"
)

// AddressLength is the byte length of every identity.
const AddressLength = 20

// Address represents a 20-byte identity with a human-readable prefix. The zero
// value is the empty address.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
	set    bool
}

// NewAddress builds an address from a raw 20-byte slice.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	addr := Address{prefix: prefix, set: true}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is NewAddress for constant inputs.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns the bech32 encoding of the address.
func (a Address) String() string {
	if !a.set {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes, or nil for the empty address.
func (a Address) Bytes() []byte {
	if !a.set {
		return nil
	}
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Hex returns the lowercase hex form of the raw bytes, used for storage keys.
func (a Address) Hex() string {
	if !a.set {
		return ""
	}
	return hex.EncodeToString(a.bytes[:])
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return !a.set
}

// Equal compares the raw bytes of two addresses. Prefixes are presentation only.
func (a Address) Equal(other Address) bool {
	return a.set == other.set && bytes.Equal(a.bytes[:], other.bytes[:])
}

// Key returns a comparable map key for the address.
func (a Address) Key() [AddressLength]byte {
	return a.bytes
}

// MarshalText encodes the address as bech32.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a bech32 address.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 encoded address.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address is required")
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account identity controlled by the key.
func (k *PublicKey) Address() Address {
	return MustNewAddress(AccountPrefix, crypto.PubkeyToAddress(*k.PublicKey).Bytes())
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// DeriveAddress deterministically maps a label to an address by hashing it.
// Used for program custody identities and development fixtures.
func DeriveAddress(prefix AddressPrefix, label string) Address {
	digest := crypto.Keccak256([]byte(label))
	return MustNewAddress(prefix, digest[len(digest)-AddressLength:])
}
