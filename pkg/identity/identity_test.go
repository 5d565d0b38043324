package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	assert.Equal(t, "did:wba:example.com:ada", Derive("example.com", "ada"))
	assert.Equal(t, "did:wba:127.0.0.1%3A8420:ada", Derive("127.0.0.1:8420", "ada"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		did  string
		want bool
	}{
		{"well-formed", "did:wba:example.com:ada", true},
		{"well-formed with port", "did:wba:127.0.0.1%3A8420:ada", true},
		{"missing prefix", "wba:example.com:ada", false},
		{"empty name", "did:wba:example.com:", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.did))
		})
	}
}

func TestHostAndName(t *testing.T) {
	did := Derive("127.0.0.1:8420", "ada")

	host, err := Host(did)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8420", host)

	name, err := Name(did)
	require.NoError(t, err)
	assert.Equal(t, "ada", name)

	_, err = Host("not-a-did")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	id, err := Generate("ada", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "did:wba:example.com:ada", id.DID())
	assert.NotEmpty(t, id.PublicKeyB64())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	id, err := Generate("ada", "example.com")
	require.NoError(t, err)
	require.NoError(t, id.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "keys", "private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, id.DID(), loaded.DID())
	assert.Equal(t, id.PublicKeyB64(), loaded.PublicKeyB64())

	// Keys actually round-trip: a signature made by the loaded identity
	// verifies against the originally generated one's public key.
	payload := []byte("round-trip payload")
	sig := loaded.Sign(payload)
	assert.True(t, id.Verify(payload, sig))
}

func TestLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerate(dir, "ada", "example.com")
	require.NoError(t, err)

	second, err := LoadOrGenerate(dir, "ada", "example.com")
	require.NoError(t, err)

	assert.Equal(t, first.DID(), second.DID())
	assert.Equal(t, first.PublicKeyB64(), second.PublicKeyB64())
}

func TestLoad_MissingKeyIsHardError(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestSignVerifyLaws(t *testing.T) {
	id, err := Generate("ada", "example.com")
	require.NoError(t, err)

	payload := []byte(`{"content":"hola","type":"thread_message"}`)

	t.Run("verify(pub, signableBytes, sign(signableBytes)) = true", func(t *testing.T) {
		sig := id.Sign(payload)
		assert.True(t, VerifyWith(id.PublicKeyB64(), payload, sig))
		assert.True(t, id.Verify(payload, sig))
	})

	t.Run("tampered payload fails verification", func(t *testing.T) {
		sig := id.Sign(payload)
		assert.False(t, id.Verify([]byte("tampered"), sig))
	})

	t.Run("tampered signature fails verification", func(t *testing.T) {
		assert.False(t, id.Verify(payload, "not-a-real-signature"))
	})

	t.Run("foreign public key never panics on garbage input", func(t *testing.T) {
		assert.False(t, VerifyWith("not-base64url!!!", payload, "also-not-base64url!!!"))
	})
}

func TestUpdateHost(t *testing.T) {
	dir := t.TempDir()
	id, err := Generate("ada", "old.example.com")
	require.NoError(t, err)
	require.NoError(t, id.Save(dir))

	pubBefore := id.PublicKeyB64()

	require.NoError(t, id.UpdateHost("new.example.com", dir))
	assert.Equal(t, "did:wba:new.example.com:ada", id.DID())
	assert.Equal(t, pubBefore, id.PublicKeyB64(), "keys must not change on host update")

	payload := []byte("post-update payload")
	sig := id.Sign(payload)
	assert.True(t, id.Verify(payload, sig), "signing must still round-trip after host update")

	doc := id.ToDocument()
	assert.Equal(t, "did:wba:new.example.com:ada", doc.ID)
}

func TestToDocument(t *testing.T) {
	id, err := Generate("ada", "example.com")
	require.NoError(t, err)

	doc := id.ToDocument()
	assert.Equal(t, id.DID(), doc.ID)
	require.Len(t, doc.VerificationMethod, 1)
	vm := doc.VerificationMethod[0]
	assert.Equal(t, id.DID()+"#key-1", vm.ID)
	assert.Equal(t, "Ed25519VerificationKey2020", vm.Type)
	assert.Equal(t, id.DID(), vm.Controller)
	assert.Equal(t, "z"+id.PublicKeyB64(), vm.PublicKeyMultibase)
	assert.Equal(t, []string{vm.ID}, doc.Authentication)
	assert.Equal(t, []string{vm.ID}, doc.AssertionMethod)
}

func TestFingerprint(t *testing.T) {
	id, err := Generate("ada", "example.com")
	require.NoError(t, err)

	fp := id.Fingerprint()
	assert.NotEmpty(t, fp)

	// Deterministic for the same key pair.
	assert.Equal(t, fp, id.Fingerprint())
}
