package models

// Level represents a difficulty tier of the memory game
type Level struct {
	Name      string `yaml:"name" json:"name"`
	Slug      string `yaml:"-" json:"slug"`
	CardCount int    `yaml:"cards" json:"card_count"`
	TimeLimit int    `yaml:"time_limit" json:"time_limit"` // seconds
	Attempts  int    `yaml:"attempts" json:"attempts"`
}

// Pairs returns the number of distinct symbols on the board
func (l Level) Pairs() int {
	return l.CardCount / 2
}

// GamePath returns the path of the level's game view
func (l Level) GamePath() string {
	return "/game/" + l.Slug
}
