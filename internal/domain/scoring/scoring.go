// Package scoring accumulates match outcomes into win and game tensors and
// derives win-rate statistics from them.
package scoring

import (
	"errors"
	"fmt"

	"github.com/okian/matchbench/internal/domain/model"
)

const (
	// Neutral is the rate reported for cells with no games.
	Neutral = 0.5
	// SelfGames fills the diagonal of the game tensor. Self wins stay zero, so
	// wins never exceed games on any cell.
	SelfGames = 1
)

// ErrOutOfRange is returned when a matchup addresses a cell outside the tensors.
var ErrOutOfRange = errors.New("matchup outside tensor bounds")

// Aggregator owns the WinTensor and GameTensor of a batch.
//
// It is not safe for concurrent use; a single draining loop records into it.
type Aggregator struct {
	n        int
	maps     int
	wins     [][][]int // [home][away][map]
	games    [][][]int
	failures int
	recorded int
}

// NewAggregator creates empty tensors for n entrants over numMaps maps.
func NewAggregator(n, numMaps int) *Aggregator {
	a := &Aggregator{
		n:     n,
		maps:  numMaps,
		wins:  newTensor(n, numMaps),
		games: newTensor(n, numMaps),
	}
	for i := 0; i < n; i++ {
		for m := 0; m < numMaps; m++ {
			a.games[i][i][m] = SelfGames
		}
	}
	return a
}

func newTensor(n, numMaps int) [][][]int {
	t := make([][][]int, n)
	for i := range t {
		t[i] = make([][]int, n)
		for j := range t[i] {
			t[i][j] = make([]int, numMaps)
		}
	}
	return t
}

// Record folds one completed game into the tensors.
func (a *Aggregator) Record(m model.Matchup, winner model.Side) error {
	if m.Home < 0 || m.Home >= a.n || m.Away < 0 || m.Away >= a.n || m.Home == m.Away ||
		m.MapIndex < 0 || m.MapIndex >= a.maps {
		return fmt.Errorf("%w: home=%d away=%d map=%d", ErrOutOfRange, m.Home, m.Away, m.MapIndex)
	}

	homeWon := (winner == model.SideA) != m.Swapped
	a.games[m.Home][m.Away][m.MapIndex]++
	if homeWon {
		a.wins[m.Home][m.Away][m.MapIndex]++
	}
	a.recorded++
	return nil
}

// RecordFailure counts a job that produced no winner. The tensors are untouched.
func (a *Aggregator) RecordFailure() {
	a.failures++
}

// Recorded returns the number of games folded into the tensors.
func (a *Aggregator) Recorded() int { return a.recorded }

// Failures returns the number of failed jobs.
func (a *Aggregator) Failures() int { return a.failures }

// Wins returns WinTensor[i][j][m].
func (a *Aggregator) Wins(i, j, m int) int { return a.wins[i][j][m] }

// Games returns GameTensor[i][j][m]. Self cells hold SelfGames.
func (a *Aggregator) Games(i, j, m int) int { return a.games[i][j][m] }

// Rate returns the fraction of games between i and j on map m that i won,
// counting games in either orientation. The second result is false when no
// games were played, in which case the rate is Neutral.
func (a *Aggregator) Rate(i, j, m int) (float64, bool) {
	if i == j {
		return Neutral, false
	}
	total := a.games[i][j][m] + a.games[j][i][m]
	if total == 0 {
		return Neutral, false
	}
	won := a.wins[i][j][m] + a.games[j][i][m] - a.wins[j][i][m]
	return float64(won) / float64(total), true
}

// MapMean is the mean rate of i against every opponent on map m.
func (a *Aggregator) MapMean(i, m int) float64 {
	var acc meanAcc
	for j := 0; j < a.n; j++ {
		acc.add(a.Rate(i, j, m))
	}
	return acc.value()
}

// PairMean is the mean rate of i against j over all maps.
func (a *Aggregator) PairMean(i, j int) float64 {
	var acc meanAcc
	for m := 0; m < a.maps; m++ {
		acc.add(a.Rate(i, j, m))
	}
	return acc.value()
}

// Overall is the mean rate of i over every opponent and map.
func (a *Aggregator) Overall(i int) float64 {
	var acc meanAcc
	for j := 0; j < a.n; j++ {
		for m := 0; m < a.maps; m++ {
			acc.add(a.Rate(i, j, m))
		}
	}
	return acc.value()
}

// meanAcc averages played cells only.
type meanAcc struct {
	sum float64
	n   int
}

func (acc *meanAcc) add(rate float64, played bool) {
	if played {
		acc.sum += rate
		acc.n++
	}
}

func (acc *meanAcc) value() float64 {
	if acc.n == 0 {
		return Neutral
	}
	return acc.sum / float64(acc.n)
}
