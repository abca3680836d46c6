package session

import (
	"sync"

	"lanlink/internal/cipher"
)

// Identity is the operator's display name and shared key. The input loop
// writes it; the listener reads the key for every datagram.
type Identity struct {
	mu    sync.RWMutex
	name  string
	key   string
	kdf   string
	codec *cipher.Codec
}

// NewIdentity returns an identity whose key is derived with kdf.
func NewIdentity(name, key, kdf string) (*Identity, error) {
	k, err := cipher.Derive(kdf, key)
	if err != nil {
		return nil, err
	}
	return &Identity{name: name, key: key, kdf: kdf, codec: cipher.New(k)}, nil
}

func (id *Identity) Name() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.name
}

func (id *Identity) Key() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.key
}

func (id *Identity) SetName(name string) {
	id.mu.Lock()
	id.name = name
	id.mu.Unlock()
}

// SetKey replaces the passphrase and re-derives the codec.
func (id *Identity) SetKey(key string) {
	// kdf was validated in NewIdentity, so Derive cannot fail here.
	k, _ := cipher.Derive(id.kdf, key)
	c := cipher.New(k)

	id.mu.Lock()
	id.key = key
	id.codec = c
	id.mu.Unlock()
}

// Codec returns the codec for the current key.
func (id *Identity) Codec() *cipher.Codec {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.codec
}

func (id *Identity) snapshot() (string, *cipher.Codec) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.name, id.codec
}
