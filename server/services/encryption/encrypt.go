package encryption

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// newEncryptionKey generates a random 256-bit key.
func newEncryptionKey() *[32]byte {
	key := [32]byte{}
	_, err := io.ReadFull(rand.Reader, key[:])
	if err != nil {
		panic(err)
	}
	return &key
}

// encrypt seals data with the key. The random nonce is prepended to the returned ciphertext.
func encrypt(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return nil, errors.Wrap(err, "error generating nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// decrypt opens a ciphertext previously produced by encrypt.
func decrypt(ciphertext []byte, key *[32]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, errors.New("malformed ciphertext")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("ciphertext failed authentication")
	}
	return plaintext, nil
}
