// Package cipher turns a shared passphrase into an AES-128 key and applies
// AES-CTR to chat payloads.
//
// The counter block is reset to the same starting value on every Encrypt and
// Decrypt call. Each datagram is therefore decryptable on its own, without any
// keystream state carried over from earlier chunks. Peers already on the
// network depend on this, so it must not become a running keystream.
//
// There is no integrity check. Decrypting with the wrong key, or decrypting
// corrupted bytes, yields garbage rather than an error.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the derived key length in bytes (AES-128).
const KeySize = 16

const (
	// KDFMD5 hashes the passphrase with MD5, unsalted. Weak, but it is what
	// every existing peer uses.
	KDFMD5 = "md5"
	// KDFHKDF derives the key with HKDF-SHA256. Opt-in only: peers on MD5
	// cannot read traffic keyed this way.
	KDFHKDF = "hkdf"
)

var hkdfSalt = []byte("lanlink-broadcast-v1")

// initialCounter is the big-endian 128-bit integer 1.
var initialCounter = [aes.BlockSize]byte{aes.BlockSize - 1: 1}

// Key is a derived AES-128 key.
type Key [KeySize]byte

// DeriveKey returns the MD5 digest of the UTF-8 passphrase.
func DeriveKey(passphrase string) Key {
	return Key(md5.Sum([]byte(passphrase)))
}

// DeriveKeyHKDF expands the passphrase with HKDF-SHA256 and a fixed salt.
func DeriveKeyHKDF(passphrase string) Key {
	var k Key
	r := hkdf.New(sha256.New, []byte(passphrase), hkdfSalt, []byte("aes-128-ctr"))
	// HKDF-SHA256 can produce up to 255*32 bytes; 16 never fails.
	if _, err := io.ReadFull(r, k[:]); err != nil {
		panic(fmt.Sprintf("cipher: hkdf read: %v", err))
	}
	return k
}

// ValidKDF reports whether name selects a known key derivation.
func ValidKDF(name string) bool {
	return name == KDFMD5 || name == KDFHKDF
}

// Derive derives a key from passphrase with the named KDF.
func Derive(kdf, passphrase string) (Key, error) {
	switch kdf {
	case KDFMD5, "":
		return DeriveKey(passphrase), nil
	case KDFHKDF:
		return DeriveKeyHKDF(passphrase), nil
	default:
		return Key{}, fmt.Errorf("cipher: unknown kdf %q", kdf)
	}
}

// Codec encrypts and decrypts payloads under one key.
// It holds no keystream state and is safe for concurrent use.
type Codec struct {
	block stdcipher.Block
}

// New returns a Codec for key.
func New(key Key) *Codec {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// aes.NewCipher only rejects bad key lengths; Key is fixed at 16.
		panic(fmt.Sprintf("cipher: %v", err))
	}
	return &Codec{block: block}
}

// Encrypt returns the CTR transform of plaintext with a fresh counter.
func (c *Codec) Encrypt(plaintext []byte) []byte {
	return c.xor(plaintext)
}

// Decrypt is the inverse of Encrypt. It never fails.
func (c *Codec) Decrypt(ciphertext []byte) []byte {
	return c.xor(ciphertext)
}

func (c *Codec) xor(in []byte) []byte {
	iv := initialCounter
	out := make([]byte, len(in))
	stdcipher.NewCTR(c.block, iv[:]).XORKeyStream(out, in)
	return out
}
