package models

// Leaders holds every user tied for the best value of one metric. An empty
// Users slice means nobody qualified.
type Leaders[T int | float64] struct {
	Users []string `json:"users"`
	Value T        `json:"value"`
}

// HasWinner reports whether at least one user qualified
func (l Leaders[T]) HasWinner() bool {
	return len(l.Users) > 0
}

// Single is one named winner with a value
type Single[T int | float64] struct {
	Username string `json:"username"`
	Value    T      `json:"value"`
}

// RisingStar is the highest engagement score of the day. Improvement is
// always "N/A" because no baseline is kept.
type RisingStar struct {
	Username    string  `json:"username"`
	Score       float64 `json:"score"`
	Improvement string  `json:"improvement"`
}

// TopPerformers is the ranked view of one day's activities
type TopPerformers struct {
	TopPoster             Leaders[int]     `json:"topPoster"`
	TopCommenter          Leaders[int]     `json:"topCommenter"`
	TopSupporter          Leaders[int]     `json:"topSupporter"`
	MostEngaged           Leaders[float64] `json:"mostEngaged"`
	RisingStar            *RisingStar      `json:"risingStar,omitempty"`
	ConsistentContributor *Single[int]     `json:"consistentContributor,omitempty"`
}

// PatacoinEntry is one row of the reward leaderboard
type PatacoinEntry struct {
	Username  string  `json:"username"`
	Patacoins float64 `json:"patacoins"`
}
