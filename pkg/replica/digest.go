package replica

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/payload"
)

// Digest hashes doc in a canonical form: paths in order, each followed by its
// encoded payload. Replicas holding the same document have the same digest.
func Digest(doc core.State) uint64 {
	h := xxhash.New()
	for _, path := range doc.Paths() {
		_, _ = h.WriteString(path)
		_, _ = h.Write([]byte{0})
		raw, err := payload.Encode(doc[path])
		if err != nil {
			_, _ = fmt.Fprintf(h, "%T:%v", doc[path], doc[path])
		} else {
			_, _ = h.Write(raw)
		}
		_, _ = h.Write([]byte{'\n'})
	}
	return h.Sum64()
}
