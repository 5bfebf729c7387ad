package binaryagreement

// senderSet maps each binary value to the senders that sent it.
type senderSet struct {
	zero map[int]struct{}
	one  map[int]struct{}
	seen map[int]struct{}
}

func newSenderSet() *senderSet {
	return &senderSet{
		zero: make(map[int]struct{}),
		one:  make(map[int]struct{}),
		seen: make(map[int]struct{}),
	}
}

// insert records v for sender. Only the first message of a sender counts;
// it returns false for duplicates.
func (s *senderSet) insert(sender int, v Value) bool {
	if _, dup := s.seen[sender]; dup {
		return false
	}
	s.seen[sender] = struct{}{}
	switch v {
	case Zero:
		s.zero[sender] = struct{}{}
	case One:
		s.one[sender] = struct{}{}
	}
	return true
}

func (s *senderSet) tally() Tally {
	return Tally{Zero: len(s.zero), One: len(s.one)}
}

// CountValues tallies msgs, counting each sender once.
func CountValues(msgs []Message) Tally {
	set := newSenderSet()
	for _, m := range msgs {
		set.insert(m.Sender, m.Value)
	}
	return set.tally()
}

// majority is the smallest count strictly greater than half of n.
func majority(n int) int { return n/2 + 1 }

// proposalCandidate applies the proposal rule: a value proposed by a
// majority of the N-F quorum wins.
func proposalCandidate(t Tally, numNodes, numFaulty int) (Value, bool) {
	need := majority(numNodes - numFaulty)
	if t.Zero >= need {
		return Zero, true
	}
	if t.One >= need {
		return One, true
	}
	return Unknown, false
}

// voteDecision checks unanimity first, then a simple majority of N.
func voteDecision(t Tally, numNodes int) (Value, bool) {
	if t.Zero == numNodes {
		return Zero, true
	}
	if t.One == numNodes {
		return One, true
	}
	need := majority(numNodes)
	if t.Zero >= need {
		return Zero, true
	}
	if t.One >= need {
		return One, true
	}
	return Unknown, false
}
