// Package keys derives deterministic ed25519 signing keypairs and chain
// addresses from mnemonics or imported private key material.
package keys

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

const (
	// AddressPrefix marks a displayable chain address.
	AddressPrefix = "oct"

	// entropyBits yields 12-word mnemonics.
	entropyBits = 128
)

// seedDomain keys the HMAC that stretches a BIP-39 seed into the master
// signing seed. Changing it invalidates recovery of every existing wallet.
var seedDomain = []byte("Octra seed")

// ErrInvalidKeyFormat indicates imported key material in an unsupported encoding.
var ErrInvalidKeyFormat = errors.New("invalid key format")

// Keypair is an ed25519 signing keypair together with its derived address.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Address    string
}

// Zero wipes the private key material. Call once the keypair is no longer needed.
func (k *Keypair) Zero() {
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}

// Generate creates a fresh mnemonic from secure entropy and derives its keypair.
func Generate() (string, Keypair, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", Keypair{}, fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", Keypair{}, fmt.Errorf("encode mnemonic: %w", err)
	}
	kp, err := FromMnemonic(mnemonic)
	if err != nil {
		return "", Keypair{}, err
	}
	return mnemonic, kp, nil
}

// FromMnemonic deterministically rebuilds the keypair encoded by a mnemonic.
func FromMnemonic(mnemonic string) (Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Keypair{}, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	mac := hmac.New(sha512.New, seedDomain)
	mac.Write(seed)
	master := mac.Sum(nil)

	return fromSeed(master[:ed25519.SeedSize]), nil
}

var (
	hexSeedPattern     = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	hexExpandedPattern = regexp.MustCompile(`^[0-9a-fA-F]{128}$`)
	base64SeedPattern  = regexp.MustCompile(`^[A-Za-z0-9+/=]{44}$`)
)

// FromPrivateKey accepts externally supplied key material in one of three
// encodings: 64 hex chars (seed), 128 hex chars (expanded key, of which the
// first half is the seed), or a 44-char base64 string (seed). Anything else
// fails with ErrInvalidKeyFormat.
func FromPrivateKey(material string) (Keypair, error) {
	var seed []byte
	switch {
	case hexSeedPattern.MatchString(material):
		seed, _ = hex.DecodeString(material)
	case hexExpandedPattern.MatchString(material):
		seed, _ = hex.DecodeString(material[:64])
	case base64SeedPattern.MatchString(material):
		decoded, err := base64.StdEncoding.DecodeString(material)
		if err != nil {
			return Keypair{}, ErrInvalidKeyFormat
		}
		seed = decoded
	default:
		return Keypair{}, ErrInvalidKeyFormat
	}
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, ErrInvalidKeyFormat
	}
	return fromSeed(seed), nil
}

func fromSeed(seed []byte) Keypair {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return Keypair{PublicKey: pub, PrivateKey: priv, Address: Address(pub)}
}

// Address computes the displayable chain address for a public key.
func Address(pub ed25519.PublicKey) string {
	digest := sha256.Sum256(pub)
	return AddressPrefix + base58.Encode(digest[:])
}
