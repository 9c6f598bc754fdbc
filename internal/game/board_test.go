package game

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBoardPairs(t *testing.T) {
	t.Parallel()

	for _, cards := range []int{2, 8, 12, 16} {
		board := NewBoard(cards, rand.Shuffle)
		assert.Len(t, board, cards)

		counts := make(map[int]int)
		for _, symbol := range board {
			counts[symbol]++
		}
		assert.Len(t, counts, cards/2)
		for symbol := 1; symbol <= cards/2; symbol++ {
			assert.Equal(t, 2, counts[symbol], "symbol %d on a %d card board", symbol, cards)
		}
	}
}

func TestNewBoardUsesShuffle(t *testing.T) {
	t.Parallel()

	noop := func(int, func(i, j int)) {}
	assert.Equal(t, []int{1, 2, 3, 4, 1, 2, 3, 4}, NewBoard(8, noop))

	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	assert.Equal(t, []int{3, 2, 1, 3, 2, 1}, NewBoard(6, reverse))
}

func TestNewBoardSeeded(t *testing.T) {
	t.Parallel()

	shuffle := func(seed uint64) ShuffleFunc {
		return rand.New(rand.NewPCG(seed, seed)).Shuffle
	}

	assert.Equal(t, NewBoard(16, shuffle(42)), NewBoard(16, shuffle(42)))
}
