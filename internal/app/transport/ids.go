package transport

import (
	"strconv"
	"sync/atomic"
)

// IDSource hands out candidate ids that are unique for the process lifetime.
// One instance is shared by every manager.
type IDSource struct {
	next atomic.Uint64
}

func NewIDSource() *IDSource {
	s := &IDSource{}
	s.next.Store(1)
	return s
}

func (s *IDSource) Next() string {
	return strconv.FormatUint(s.next.Add(1)-1, 10)
}
