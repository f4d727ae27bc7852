package protocol_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/protocol"
)

func decodeAll(t *testing.T, d *protocol.Decoder) []protocol.Frame {
	t.Helper()
	var out []protocol.Frame
	for {
		f, ok, err := d.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

// Property: any chunking of a stream decodes to the same frame sequence as
// feeding it whole.
func TestProperty_ChunkingIsTransparent(t *testing.T) {
	tags := []byte{protocol.TagJSON, protocol.TagPayload, protocol.TagLogDebug, protocol.TagLogError}
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))

		var stream []byte
		count := 1 + rng.Intn(20)
		for i := 0; i < count; i++ {
			content := make([]byte, rng.Intn(300))
			rng.Read(content)
			var err error
			stream, err = protocol.AppendFrame(stream, tags[rng.Intn(len(tags))], content, 0)
			require.NoError(t, err)
		}

		whole := protocol.NewDecoder(0, 0)
		whole.Feed(stream)
		want := decodeAll(t, whole)
		require.Len(t, want, count)

		chunked := protocol.NewDecoder(0, 1+rng.Intn(64))
		var got []protocol.Frame
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			if rng.Intn(2) == 0 {
				chunked.Feed(rest[:n])
			} else {
				buf := chunked.Writable(n)
				chunked.Commit(copy(buf, rest[:n]))
			}
			rest = rest[n:]
			got = append(got, decodeAll(t, chunked)...)
		}

		require.Equal(t, want, got, "seed %d", seed)
		require.Zero(t, chunked.Buffered(), "seed %d", seed)
	}
}
