package binaryagreement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParityCoin(t *testing.T) {
	assert.Equal(t, Zero, ParityCoin.Flip(2, 0))
	assert.Equal(t, One, ParityCoin.Flip(2, 1))
	assert.Equal(t, One, ParityCoin.Flip(3, 2))
}

func TestCoinsAreDeterministic(t *testing.T) {
	for _, coin := range []Coin{ParityCoin, HashCoin, CommonCoin} {
		for round := uint64(1); round < 20; round++ {
			v := coin.Flip(round, 3)
			assert.True(t, v.IsBinary())
			assert.Equal(t, v, coin.Flip(round, 3))
		}
	}
}

func TestCommonCoinIgnoresNode(t *testing.T) {
	for round := uint64(1); round < 20; round++ {
		assert.Equal(t, CommonCoin.Flip(round, 0), CommonCoin.Flip(round, 7))
	}
}

func TestHashCoinProducesBothValues(t *testing.T) {
	var seen Tally
	for round := uint64(1); round <= 64; round++ {
		if HashCoin.Flip(round, 1) == One {
			seen.One++
		} else {
			seen.Zero++
		}
	}
	assert.Positive(t, seen.Zero)
	assert.Positive(t, seen.One)
}

func TestCoinByName(t *testing.T) {
	c, err := CoinByName("Parity")
	require.NoError(t, err)
	assert.Equal(t, ParityCoin.Flip(5, 2), c.Flip(5, 2))

	_, err = CoinByName("dice")
	assert.Error(t, err)
}
