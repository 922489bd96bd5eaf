package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShadowLocatorIsStablePerBucketKey(t *testing.T) {
	a := shadowLocator("bucket-one", "path/to/object")
	b := shadowLocator("bucket-one", "path/to/object")
	require.Equal(t, a, b)

	c := shadowLocator("bucket-two", "path/to/object")
	require.NotEqual(t, a, c)
}

func TestManifestAuthTagDetectsTamperedObjectOrETag(t *testing.T) {
	key := []byte("01234567890123456789012345678901")
	tag := manifestAuthTag(key, "QmObject", "etag-1")

	require.Equal(t, tag, manifestAuthTag(key, "QmObject", "etag-1"))
	require.NotEqual(t, tag, manifestAuthTag(key, "QmOther", "etag-1"))
	require.NotEqual(t, tag, manifestAuthTag(key, "QmObject", "etag-2"))
	require.NotEqual(t, tag, manifestAuthTag([]byte("different-key-32-bytes-long-xxx"), "QmObject", "etag-1"))
}
