package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// ulid.Monotonic keeps IDs generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the current time.
//
// ULIDs sort by generation time, which keeps journal rows and SQLite
// indexes in insertion order.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID whose timestamp component is t. Live decision
// records use the cycle time so IDs sort with the trading timeline.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible if entropy fails or the monotonic source overflows.
		panic(err)
	}
	return id.String()
}

// Sequence hands out deterministic, zero-padded identifiers such as
// "T000001". Backtests use it instead of ULIDs so that two runs over the
// same data produce byte-identical logs.
type Sequence struct {
	prefix string
	n      int
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	s.n++
	return fmt.Sprintf("%s%06d", s.prefix, s.n)
}
