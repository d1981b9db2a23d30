// Package session implements the encrypted UDP datagram transport
// between clients and the sequencer: an X25519 handshake, HKDF-SHA256
// key derivation, and a ChaCha20-Poly1305 AEAD record layer with a
// WireGuard-style counter nonce.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidNonceLength = errors.New("session: invalid nonce length")
	ErrDecryptionFailed   = errors.New("session: decryption failed")
	ErrReplayedCounter    = errors.New("session: counter has already been seen")
)

const hkdfInfo = "zelana-v2-session"

// GenerateKeyPair returns a fresh X25519 private/public key pair.
func GenerateKeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubBytes, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], pubBytes)
	return
}

// SharedSecret computes the X25519 Diffie-Hellman shared secret.
func SharedSecret(priv, peerPub [32]byte) ([32]byte, error) {
	var out [32]byte
	secret, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

// Keys holds one side's derived AEAD cipher and nonce state for an
// established session.
type Keys struct {
	aead       chacha20poly1305.AEAD
	baseIV     [12]byte
	txCounter  uint64
	rxSeen     map[uint64]struct{}
	rxHighest  uint64
}

// Derive computes session keys from a DH shared secret and both
// parties' static public keys: salt = SHA256(clientPK || serverPK),
// then HKDF-SHA256(salt, secret, "zelana-v2-session") -> 32-byte key
// + 12-byte base IV.
func Derive(sharedSecret, clientPub, serverPub [32]byte) (*Keys, error) {
	h := sha256.New()
	h.Write(clientPub[:])
	h.Write(serverPub[:])
	salt := h.Sum(nil)

	kdf := hkdf.New(sha256.New, sharedSecret[:], salt, []byte(hkdfInfo))
	okm := make([]byte, 44)
	if _, err := io.ReadFull(kdf, okm); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(okm[0:32])
	if err != nil {
		return nil, err
	}

	k := &Keys{aead: aead, rxSeen: make(map[uint64]struct{})}
	copy(k.baseIV[:], okm[32:44])
	return k, nil
}

// computeNonce XORs the big-endian counter into the low 8 bytes of the
// base IV, WireGuard-style.
func computeNonce(baseIV [12]byte, counter uint64) [12]byte {
	n := baseIV
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], counter)
	for i := 0; i < 8; i++ {
		n[11-i] ^= c[7-i]
	}
	return n
}

// Encrypt increments the tx counter and returns [nonce(12) || ciphertext].
func (k *Keys) Encrypt(plaintext []byte) ([]byte, error) {
	k.txCounter++
	nonce := computeNonce(k.baseIV, k.txCounter)

	ciphertext := k.aead.Seal(nil, nonce[:], plaintext, nil)

	out := make([]byte, 0, 12+len(ciphertext))
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt verifies and decrypts a record given its explicit nonce. It
// rejects a nonce whose counter has already been observed, and records
// the counter of every record it decrypts, in or out of order (also
// tracking the highest counter seen).
func (k *Keys) Decrypt(nonceBytes, ciphertext []byte) ([]byte, error) {
	if len(nonceBytes) != 12 {
		return nil, ErrInvalidNonceLength
	}
	var nonce [12]byte
	copy(nonce[:], nonceBytes)

	counter := recoverCounter(k.baseIV, nonce)
	if _, seen := k.rxSeen[counter]; seen {
		return nil, ErrReplayedCounter
	}

	plaintext, err := k.aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	k.rxSeen[counter] = struct{}{}
	if counter > k.rxHighest {
		k.rxHighest = counter
	}
	return plaintext, nil
}

// recoverCounter undoes computeNonce's XOR to recover the counter a
// received nonce encodes, for replay bookkeeping.
func recoverCounter(baseIV, nonce [12]byte) uint64 {
	var c [8]byte
	for i := 0; i < 8; i++ {
		c[7-i] = nonce[11-i] ^ baseIV[11-i]
	}
	return binary.BigEndian.Uint64(c[:])
}

// ActiveSession pairs a peer's derived keys with its identity and
// idle-tracking timestamp.
type ActiveSession struct {
	Keys         *Keys
	AccountId    *[32]byte
	LastActivity time.Time
}

// Manager holds every currently-established session, keyed by the
// peer's UDP address.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*ActiveSession)}
}

func (m *Manager) Insert(addr net.Addr, keys *Keys) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[addr.String()] = &ActiveSession{Keys: keys, LastActivity: time.Now()}
}

func (m *Manager) Get(addr net.Addr) (*ActiveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[addr.String()]
	return s, ok
}

func (m *Manager) Remove(addr net.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, addr.String())
}

func (m *Manager) Touch(addr net.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[addr.String()]; ok {
		s.LastActivity = time.Now()
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle removes sessions inactive longer than timeout. It copies
// the set of keys to remove before deleting, so removal never races
// with the map iteration used to find them.
func (m *Manager) SweepIdle(timeout time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var stale []string
	for addr, s := range m.sessions {
		if now.Sub(s.LastActivity) > timeout {
			stale = append(stale, addr)
		}
	}
	for _, addr := range stale {
		delete(m.sessions, addr)
	}
	return len(stale)
}
