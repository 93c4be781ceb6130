// Package tempid generates the client-side temporary identity space for
// optimistic writes: time-ordered ids, collision-free per device, prefixed
// so reconciliation can tell them apart from durable store ids.
package tempid

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	deviceBits        = 6
	seqBits           = 10
	deviceMax         = -1 ^ (-1 << deviceBits)
	seqMask           = -1 ^ (-1 << seqBits)
	timeShift         = deviceBits + seqBits
	deviceShift       = seqBits
	epoch       int64 = 1735689600000 // 2025-01-01 00:00:00 UTC

	prefix = "tmp-"
)

type Generator struct {
	mu     sync.Mutex
	last   int64
	device int64
	seq    int64
}

func NewGenerator(device int64) (*Generator, error) {
	if device < 0 || device > deviceMax {
		return nil, errors.New("device number must be between 0 and 63")
	}
	return &Generator{device: device}, nil
}

// Next returns a fresh temporary id. Ids issued by one generator are
// strictly increasing, so equal-timestamp messages keep their send order
// under the id tie-break.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < g.last {
		// Clock moved backwards; hold the line rather than reuse ids.
		now = g.last
	}

	if now == g.last {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.last = now

	n := ((now - epoch) << timeShift) | (g.device << deviceShift) | g.seq
	return prefix + strconv.FormatInt(n, 36)
}

// IsTemp reports whether an id belongs to the temporary identity space.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, prefix)
}
