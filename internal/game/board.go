package game

// ShuffleFunc has the signature of rand.Shuffle
type ShuffleFunc func(n int, swap func(i, j int))

// NewBoard lays out cardCount cards: every symbol from 1 to cardCount/2
// appears exactly twice, in the order produced by shuffle.
func NewBoard(cardCount int, shuffle ShuffleFunc) []int {
	pairs := cardCount / 2
	board := make([]int, 0, pairs*2)
	for round := 0; round < 2; round++ {
		for symbol := 1; symbol <= pairs; symbol++ {
			board = append(board, symbol)
		}
	}

	shuffle(len(board), func(i, j int) {
		board[i], board[j] = board[j], board[i]
	})
	return board
}
