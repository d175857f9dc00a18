package orders

import (
	"fmt"
	"sync"
	"time"
)

// OrderNoGenerator issues yyyyMMddHHmmss plus a 4-digit sequence that resets
// every second. Past 9999 in one second it waits for the next second.
type OrderNoGenerator struct {
	mu   sync.Mutex
	last string
	seq  int
	now  func() time.Time
}

func NewOrderNoGenerator() *OrderNoGenerator {
	return &OrderNoGenerator{now: time.Now}
}

func (g *OrderNoGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		ts := g.now().Format("20060102150405")
		if ts != g.last {
			g.last, g.seq = ts, 0
		}
		if g.seq < 9999 {
			g.seq++
			return fmt.Sprintf("%s%04d", ts, g.seq)
		}
		time.Sleep(time.Until(g.now().Truncate(time.Second).Add(time.Second)))
	}
}
