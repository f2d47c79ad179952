package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator produces snowflake ids: 41 bits of milliseconds since 2020-01-01,
// 10 bits of node id, 12 bits of per-millisecond sequence.
type Generator struct {
	mu     sync.Mutex
	nodeID int64
	seq    int64
	lastMS int64
	now    func() time.Time
}

// NewGenerator clamps nodeID into 0..1023; out of range values fall back to 1.
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	return &Generator{nodeID: nodeID, now: time.Now}
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Sub(epoch).Milliseconds()
	if now < g.lastMS {
		// clock moved backwards: keep issuing from the last observed millisecond
		now = g.lastMS
	}
	if now == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.lastMS {
				time.Sleep(time.Millisecond / 4)
				now = g.now().Sub(epoch).Milliseconds()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	return (now&(1<<41-1))<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
)

func def() *Generator {
	defaultOnce.Do(func() { defaultGen = NewGenerator(1) })
	return defaultGen
}

// Generate returns a new snowflake id.
func Generate() int64 { return def().Next() }

func GenerateString() string { return def().NextString() }

// SetNodeID sets the default generator node (0..1023). Call it from main.
func SetNodeID(nodeID int64) {
	g := def()
	g.mu.Lock()
	defer g.mu.Unlock()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	g.nodeID = nodeID
}
