package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"

	"github.com/anp-network/node/internal/logger"
)

// Identity is an Ed25519 key pair plus the did:wba identifier derived from
// it. The identifier's host component must always equal the node's
// currently-effective public host; host changes are handled by UpdateHost,
// which rewrites the identifier and the published document without ever
// touching the keys.
type Identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	did        string
}

// Generate produces a fresh Ed25519 key pair and derives its identifier from
// name and host.
func Generate(name, host string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, logger.New(logger.ErrCodeCryptoError, "failed to generate ed25519 key pair", err)
	}
	return &Identity{
		privateKey: priv,
		publicKey:  pub,
		did:        Derive(host, name),
	}, nil
}

// Load reads the private key from keys/private.pem under dir, extracts the
// raw 32 bytes, and recovers the identifier from the published identity
// document, falling back to the node identity record.
func Load(dir string) (*Identity, error) {
	privPEM, err := os.ReadFile(filepath.Join(dir, "keys", "private.pem"))
	if err != nil {
		return nil, logger.New(logger.ErrCodeNotFound, "failed to read private key", err)
	}

	priv, err := parsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, logger.New(logger.ErrCodeCryptoError, "failed to parse private key", err)
	}

	did, err := readIdentifier(dir)
	if err != nil {
		return nil, err
	}

	return &Identity{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
		did:        did,
	}, nil
}

// LoadOrGenerate loads an existing identity if keys/private.pem exists,
// otherwise generates and persists a new one.
func LoadOrGenerate(dir, name, host string) (*Identity, error) {
	if _, err := os.Stat(filepath.Join(dir, "keys", "private.pem")); err == nil {
		return Load(dir)
	}
	id, err := Generate(name, host)
	if err != nil {
		return nil, err
	}
	if err := id.Save(dir); err != nil {
		return nil, err
	}
	return id, nil
}

func readIdentifier(dir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(dir, "did.json")); err == nil {
		var doc Document
		if jsonErr := json.Unmarshal(data, &doc); jsonErr == nil && doc.ID != "" {
			return doc.ID, nil
		}
	}
	if data, err := os.ReadFile(filepath.Join(dir, "identity.json")); err == nil {
		var record struct {
			ID string `json:"id"`
		}
		if jsonErr := json.Unmarshal(data, &record); jsonErr == nil && record.ID != "" {
			return record.ID, nil
		}
	}
	return "", logger.New(logger.ErrCodeNotFound, fmt.Sprintf("no did.json or identity.json found under %s", dir), nil)
}

// Save writes the PEM private key (0600), PEM public key, and the identity
// document under dir.
func (id *Identity) Save(dir string) error {
	keysDir := filepath.Join(dir, "keys")
	if err := os.MkdirAll(keysDir, 0755); err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to create keys directory", err)
	}

	privPEM, err := marshalPrivateKeyPEM(id.privateKey)
	if err != nil {
		return logger.New(logger.ErrCodeCryptoError, "failed to marshal private key", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "private.pem"), privPEM, 0600); err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to write private key", err)
	}

	pubPEM, err := marshalPublicKeyPEM(id.publicKey)
	if err != nil {
		return logger.New(logger.ErrCodeCryptoError, "failed to marshal public key", err)
	}
	if err := os.WriteFile(filepath.Join(keysDir, "public.pem"), pubPEM, 0644); err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to write public key", err)
	}

	doc := id.ToDocument()
	docBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to marshal identity document", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "did.json"), docBytes, 0644); err != nil {
		return logger.New(logger.ErrCodeInternal, "failed to write identity document", err)
	}

	return nil
}

// DID returns the identifier.
func (id *Identity) DID() string {
	return id.did
}

// PublicKeyB64 returns the raw 32 public key bytes, base64url-no-padding
// encoded (without the multibase 'z' prefix).
func (id *Identity) PublicKeyB64() string {
	return b64url(id.publicKey)
}

// ToDocument builds the W3C-flavored identity document published at
// /.well-known/did.json.
func (id *Identity) ToDocument() Document {
	vmID := id.did + "#key-1"
	return Document{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/ed25519-2020/v1",
		},
		ID: id.did,
		VerificationMethod: []VerificationMethod{
			{
				ID:                 vmID,
				Type:               "Ed25519VerificationKey2020",
				Controller:         id.did,
				PublicKeyMultibase: "z" + id.PublicKeyB64(),
			},
		},
		Authentication:  []string{vmID},
		AssertionMethod: []string{vmID},
		Created:         time.Now().UTC().Format(time.RFC3339),
	}
}

// Sign signs data with the identity's private key, returning a
// base64url-no-padding signature.
func (id *Identity) Sign(data []byte) string {
	sig := ed25519.Sign(id.privateKey, data)
	return b64url(sig)
}

// Verify checks a base64url-no-padding signature against the identity's own
// public key. Any decoding or cryptographic failure is reported as false.
func (id *Identity) Verify(data []byte, sigB64 string) bool {
	return VerifyWith(id.PublicKeyB64(), data, sigB64)
}

// VerifyWith checks a base64url-no-padding signature against an externally
// supplied base64url-no-padding public key. Any decoding or cryptographic
// failure is reported as false, never raised.
func VerifyWith(pubKeyB64 string, data []byte, sigB64 string) bool {
	pubBytes, err := b64urlDecode(pubKeyB64)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := b64urlDecode(sigB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), data, sigBytes)
}

// UpdateHost mutates the identifier's host component, rewrites the identity
// document under dir, and leaves the key pair untouched.
func (id *Identity) UpdateHost(newHost, dir string) error {
	name, err := Name(id.did)
	if err != nil {
		return err
	}
	id.did = Derive(newHost, name)
	return id.Save(dir)
}

// Fingerprint is a base58 encoding of the first 8 bytes of the SHA-256 hash
// of the raw public key, for human-legible display in CLI listings and log
// lines. It plays no role in any invariant, signature, or identifier.
func (id *Identity) Fingerprint() string {
	sum := sha256.Sum256(id.publicKey)
	return base58.Encode(sum[:8])
}

func b64url(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func b64urlDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func marshalPrivateKeyPEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func marshalPublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func parsePrivateKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block is not an ed25519 private key")
	}
	return priv, nil
}
