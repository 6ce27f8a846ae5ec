package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDomainSeparation(t *testing.T) {
	data := []byte("payload")

	a := ContentHash(DomainOutputs, data)
	b := ContentHash(DomainBlob, data)

	assert.Len(t, a, 64, "SHA-256 hex is 64 characters")
	assert.NotEqual(t, a, b, "different domains must produce different hashes")
	assert.Equal(t, a, ContentHash(DomainOutputs, data))
}

func TestBlobDigestStable(t *testing.T) {
	assert.Equal(t, BlobDigest("iVBORw0KGgo"), BlobDigest("iVBORw0KGgo"))
	assert.NotEqual(t, BlobDigest("iVBORw0KGgo"), BlobDigest("iVBORw0KGgp"))
}

func TestOutputsHashOrderSensitive(t *testing.T) {
	out := []OutputRecord{
		Stream{Name: StreamStdout, Text: "a"},
		Stream{Name: StreamStdout, Text: "b"},
	}
	reversed := []OutputRecord{out[1], out[0]}

	h1, err := OutputsHash(out)
	require.NoError(t, err)
	h2, err := OutputsHash(reversed)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestOutputsHashCoversAllRecordTypes(t *testing.T) {
	count := 3
	out := []OutputRecord{
		Stream{Name: StreamStderr, Text: "warn\n"},
		DisplayDatum{Data: map[string]string{"text/plain": "2"}, ExecutionCount: &count},
		ErrorOutput{Ename: "ValueError", Evalue: "bad", Traceback: []string{"line 1"}},
	}

	h, err := OutputsHash(out)
	require.NoError(t, err)
	assert.Len(t, h, 64)

	_, err = OutputsHash([]OutputRecord{nil})
	assert.ErrorContains(t, err, "nil output record")
}
