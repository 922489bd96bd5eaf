package orchestrator

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMd5sumMatchesKnownVector(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	sum := md5sum(nil)
	require.Len(t, sum, 16)
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", hexString(sum))
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}

func TestComputeContentHashPrivateSaltOverridesDedup(t *testing.T) {
	// A non-empty private salt must win regardless of bucket dedup state,
	// and must never touch the catalog to decide that — o.catalog is left
	// nil here, so any access would panic.
	o := &Orchestrator{}
	body := []byte("hello world")
	salt := []byte("caller-private-salt")

	h1, err := o.computeContentHash(context.Background(), "irrelevant-bucket", body, salt)
	require.NoError(t, err)

	expected := sha256.New()
	expected.Write(body)
	expected.Write(salt)
	require.Equal(t, expected.Sum(nil), h1)

	h2, err := o.computeContentHash(context.Background(), "irrelevant-bucket", body, salt)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "private-salted hash must be stable for identical body+salt")
}
