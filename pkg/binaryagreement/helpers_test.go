package binaryagreement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountValuesFirstMessageWins(t *testing.T) {
	msgs := []Message{
		NewVote(0, 1, One),
		NewVote(0, 1, Zero),
		NewVote(1, 1, Zero),
		NewVote(1, 1, Zero),
		NewVote(2, 1, One),
	}
	assert.Equal(t, Tally{Zero: 1, One: 2}, CountValues(msgs))
	assert.Equal(t, Tally{}, CountValues(nil))
}

func TestProposalCandidate(t *testing.T) {
	// N=4, F=1: quorum 3, majority 2.
	v, ok := proposalCandidate(Tally{Zero: 1, One: 2}, 4, 1)
	assert.True(t, ok)
	assert.Equal(t, One, v)

	_, ok = proposalCandidate(Tally{Zero: 1, One: 1}, 4, 1)
	assert.False(t, ok)

	// N=3, F=0: quorum 3, majority 2.
	v, ok = proposalCandidate(Tally{Zero: 2}, 3, 0)
	assert.True(t, ok)
	assert.Equal(t, Zero, v)
}

func TestVoteDecision(t *testing.T) {
	v, ok := voteDecision(Tally{One: 3}, 3)
	assert.True(t, ok)
	assert.Equal(t, One, v)

	v, ok = voteDecision(Tally{Zero: 3, One: 1}, 4)
	assert.True(t, ok)
	assert.Equal(t, Zero, v)

	_, ok = voteDecision(Tally{Zero: 2, One: 2}, 4)
	assert.False(t, ok)

	_, ok = voteDecision(Tally{One: 2}, 4)
	assert.False(t, ok)
}
