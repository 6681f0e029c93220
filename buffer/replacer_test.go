package buffer

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type LRUKReplacerTestSuite struct {
	suite.Suite
}

func (s *LRUKReplacerTestSuite) TestLRUKReplacerEvictsInfDistanceFirst() {
	r := NewLRUKReplacer(2)

	// frame 1: two accesses, frame 2: a single access (inf backward distance).
	r.RecordAccess(1, AccessGet)
	r.RecordAccess(1, AccessGet)
	r.RecordAccess(2, AccessGet)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	s.Require().True(ok)
	s.Equal(FrameID(2), victim, "expected frame 2 (inf distance) to be evicted")
}

func (s *LRUKReplacerTestSuite) TestLRUKReplacerPicksLargestBackwardDistance() {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1, AccessGet)
	r.RecordAccess(1, AccessGet)

	r.RecordAccess(2, AccessGet)
	r.RecordAccess(2, AccessGet)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	// frame 1's two accesses happened further in the past than frame 2's,
	// so frame 1 has the larger backward k-distance and should be evicted.
	victim, ok := r.Evict()
	s.Require().True(ok)
	s.Equal(FrameID(1), victim)
}

func (s *LRUKReplacerTestSuite) TestLRUKReplacerSkipsNonEvictable() {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1, AccessGet)
	r.SetEvictable(1, false)

	_, ok := r.Evict()
	s.False(ok, "expected no evictable frame")
}

func (s *LRUKReplacerTestSuite) TestLRUKReplacerRemove() {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1, AccessGet)
	r.SetEvictable(1, true)

	s.Equal(1, r.Size())

	r.Remove(1)

	s.Equal(0, r.Size(), "expected size 0 after remove")
	_, ok := r.Evict()
	s.False(ok, "expected no evictable frame after remove")
}

func TestLRUKReplacer(t *testing.T) {
	suite.Run(t, new(LRUKReplacerTestSuite))
}
