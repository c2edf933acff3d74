package subscribe

import (
	"fmt"
	"hash/fnv"

	"github.com/leapstack-labs/livegate/internal/paginate"
)

// fingerprintPage hashes a page's columns and row values so unchanged
// results can be detected without retaining the previous page.
func fingerprintPage(p *paginate.Page) uint64 {
	h := fnv.New64a()
	for _, col := range p.Columns {
		_, _ = h.Write([]byte(col))
		_, _ = h.Write([]byte{0})
	}
	for _, row := range p.Items {
		for _, v := range row {
			fmt.Fprintf(h, "%v", v)
			_, _ = h.Write([]byte{1})
		}
		_, _ = h.Write([]byte{2})
	}
	return h.Sum64()
}
