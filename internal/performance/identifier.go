package performance

import (
	"strconv"
	"strings"
	"time"
)

// IDGenerator mints payload identifiers for one virtual user.
//
// IDs have the form <prefix>-<vu>-<iteration>-<seq>-<unixMillis>. The VU
// index is unique for the whole run and seq restarts every iteration, so two
// calls never collide inside a run; the timestamp separates runs.
//
// An IDGenerator is owned by a single VU goroutine and is not safe for
// concurrent use.
type IDGenerator struct {
	vu        int
	iteration int64
	seq       int
	now       func() time.Time
}

// NewIDGenerator creates a generator for the VU with the given index.
func NewIDGenerator(vu int) *IDGenerator {
	return &IDGenerator{vu: vu, now: time.Now}
}

// Reset starts a new iteration.
func (g *IDGenerator) Reset(iteration int64) {
	g.iteration = iteration
	g.seq = 0
}

// Generate returns the next identifier with the given prefix.
func (g *IDGenerator) Generate(prefix string) string {
	seq := g.seq
	g.seq++

	var b strings.Builder
	b.Grow(len(prefix) + 40)
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(g.vu))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(g.iteration, 10))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(seq))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(g.now().UnixMilli(), 10))
	return b.String()
}
