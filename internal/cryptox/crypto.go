// Package cryptox implements encryption at rest for stored file bytes.
//
// Files are encrypted with AES-256 in CTR mode so that any byte offset can be
// decrypted without touching the preceding bytes; range reads stay cheap.
// Keys are per user: a master key is stretched from the configured
// passphrase with argon2, and user keys are expanded from it with HKDF.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// IVSize is the CTR initial counter block size.
const IVSize = aes.BlockSize

// ErrInvalidIV is returned when the stored IV has the wrong length.
var ErrInvalidIV = errors.New("invalid iv")

func DeriveMasterKey(password []byte, salt []byte) []byte {
	x := argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
	return x
}

// DeriveUserKey expands a 32-byte key bound to userID from the master key.
func DeriveUserKey(masterKey []byte, userID string) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte("clouddrive/file/"+userID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewIV returns a random initial counter block.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// streamAt returns a CTR keystream positioned at byte offset of the stream
// that starts with iv.
func streamAt(key, iv []byte, offset int64) (cipher.Stream, error) {
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	ctr := make([]byte, IVSize)
	copy(ctr, iv)
	addCounter(ctr, uint64(offset/IVSize))

	s := cipher.NewCTR(block, ctr)

	// burn the partial block
	if skip := offset % IVSize; skip > 0 {
		pad := make([]byte, skip)
		s.XORKeyStream(pad, pad)
	}
	return s, nil
}

// addCounter adds n to the big-endian 128-bit counter in place.
func addCounter(ctr []byte, n uint64) {
	lo := binary.BigEndian.Uint64(ctr[8:])
	hi := binary.BigEndian.Uint64(ctr[:8])
	sum := lo + n
	if sum < lo {
		hi++
	}
	binary.BigEndian.PutUint64(ctr[8:], sum)
	binary.BigEndian.PutUint64(ctr[:8], hi)
}

// EncryptReader returns a reader yielding the ciphertext of r.
func EncryptReader(r io.Reader, key, iv []byte) (io.Reader, error) {
	s, err := streamAt(key, iv, 0)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: s, R: r}, nil
}

// DecryptReaderAt returns a reader yielding the plaintext of r, where r
// starts at byte offset of the ciphertext.
func DecryptReaderAt(r io.Reader, key, iv []byte, offset int64) (io.Reader, error) {
	s, err := streamAt(key, iv, offset)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: s, R: r}, nil
}
