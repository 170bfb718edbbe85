package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAESServiceRoundTrip tests encrypt/decrypt with a configured key
func TestAESServiceRoundTrip(t *testing.T) {
	svc, err := NewService("test-key")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("hello world")
	require.NoError(t, err)
	assert.NotEqual(t, "hello world", ciphertext)

	plaintext, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello world", plaintext)
}

// TestAESServiceNonDeterministic tests that nonces vary per encryption
func TestAESServiceNonDeterministic(t *testing.T) {
	svc, err := NewService("test-key")
	require.NoError(t, err)

	a, err := svc.Encrypt("same input")
	require.NoError(t, err)
	b, err := svc.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

// TestAESServiceRejectsBadInput tests decrypt failure modes
func TestAESServiceRejectsBadInput(t *testing.T) {
	svc, err := NewService("test-key")
	require.NoError(t, err)

	_, err = svc.Decrypt("zz-not-hex")
	assert.Error(t, err)

	_, err = svc.Decrypt("abcd")
	assert.Error(t, err)

	_, err = svc.Decrypt("")
	assert.Error(t, err)
}

// TestAESServiceWrongKey tests that another key cannot read the value
func TestAESServiceWrongKey(t *testing.T) {
	svc1, err := NewService("key-one")
	require.NoError(t, err)
	svc2, err := NewService("key-two")
	require.NoError(t, err)

	ciphertext, err := svc1.Encrypt("secret")
	require.NoError(t, err)

	_, err = svc2.Decrypt(ciphertext)
	assert.Error(t, err)
}

// TestNoopService tests the pass-through used when no key is configured
func TestNoopService(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", ciphertext)

	plaintext, err := svc.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", plaintext)
}

// TestHash tests stability and key dependence
func TestHash(t *testing.T) {
	keyed, err := NewService("test-key")
	require.NoError(t, err)
	noop, err := NewService("")
	require.NoError(t, err)

	assert.Equal(t, keyed.Hash("conv-1"), keyed.Hash("conv-1"))
	assert.NotEqual(t, keyed.Hash("conv-1"), keyed.Hash("conv-2"))
	assert.NotEmpty(t, noop.Hash("conv-1"))
	assert.NotEqual(t, keyed.Hash("conv-1"), noop.Hash("conv-1"))
}
