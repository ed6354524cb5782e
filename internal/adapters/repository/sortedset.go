package repository

import "math/rand/v2"

// sortedSet is a treap ordered by (score ASC, member ASC) with subtree sizes,
// giving O(log n) expected insert, delete and rank selection.
//
// Priorities are random. Ledger scores are insertion timestamps and arrive in
// increasing order, which would degrade a score derived priority into a list.
type sortedSet struct {
	root    *node
	members map[string]float64
}

type node struct {
	member string
	score  float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func newSortedSet() *sortedSet {
	return &sortedSet{members: make(map[string]float64)}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aMember) sorts before (bScore, bMember).
func less(aScore float64, aMember string, bScore float64, bMember string) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	return aMember < bMember
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, member string, score float64, prio uint64) *node {
	if n == nil {
		return &node{member: member, score: score, prio: prio, size: 1}
	}
	if less(score, member, n.score, n.member) {
		n.left = insert(n.left, member, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, member, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, member string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && member == n.member:
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, member, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, member, score)
		}
	case less(score, member, n.score, n.member):
		n.left = deleteNode(n.left, member, score)
	default:
		n.right = deleteNode(n.right, member, score)
	}
	fix(n)
	return n
}

// collectRange appends the members with ascending ranks lo..hi (inclusive).
// offset is the rank of the leftmost node of n.
func collectRange(n *node, offset, lo, hi int, out *[]Member) {
	if n == nil {
		return
	}
	leftSize := nsize(n.left)
	rank := offset + leftSize
	if lo < rank {
		collectRange(n.left, offset, lo, hi, out)
	}
	if rank >= lo && rank <= hi {
		*out = append(*out, Member{Member: n.member, Score: n.score})
	}
	if hi > rank {
		collectRange(n.right, rank+1, lo, hi, out)
	}
}

// add inserts or re-scores member and reports whether it was new.
func (s *sortedSet) add(member string, score float64) bool {
	old, ok := s.members[member]
	if ok {
		if old == score {
			return false
		}
		s.root = deleteNode(s.root, member, old)
	}
	s.members[member] = score
	s.root = insert(s.root, member, score, rand.Uint64()) //nolint:gosec // treap balance, not security
	return !ok
}

func (s *sortedSet) remove(member string) bool {
	score, ok := s.members[member]
	if !ok {
		return false
	}
	delete(s.members, member)
	s.root = deleteNode(s.root, member, score)
	return true
}

func (s *sortedSet) len() int {
	return len(s.members)
}

// rangeByRank returns members with ascending ranks lo..hi (inclusive).
func (s *sortedSet) rangeByRank(lo, hi int) []Member {
	if lo > hi {
		return nil
	}
	out := make([]Member, 0, hi-lo+1)
	collectRange(s.root, 0, lo, hi, &out)
	return out
}
