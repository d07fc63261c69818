package storage

import (
	"bytes"
	"fmt"

	"github.com/jmcleod/visica/internal/util"
)

const (
	envelopeVersion = 1
	envelopeScheme  = "aes256gcm"
)

// Envelope is a sealed blob containing AES-256-GCM encrypted data.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Clone returns a deep copy of env.
func (env *Envelope) Clone() *Envelope {
	if env == nil {
		return nil
	}
	return &Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      bytes.Clone(env.Nonce),
		Ciphertext: bytes.Clone(env.Ciphertext),
	}
}

// SealRecord encrypts plaintext into an Envelope using the given record key and AAD.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	nonce, ciphertext, err := util.SealGCM(recordKey, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     envelopeScheme,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// OpenRecord decrypts an Envelope using the given record key and AAD.
func OpenRecord(recordKey []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("envelope must not be nil")
	}
	if envelope.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != envelopeScheme {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
	return util.OpenGCM(recordKey, envelope.Nonce, envelope.Ciphertext, aad)
}
