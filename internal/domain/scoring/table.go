package scoring

import "github.com/okian/matchbench/internal/domain/model"

// Table is a read-only snapshot of every derived statistic.
type Table struct {
	Entrants   []model.Competitor
	Maps       []string
	Rates      [][][]float64 // [i][j][m]
	Played     [][][]bool    // [i][j][m]
	MapMeans   [][]float64   // [i][m]
	PairMeans  [][]float64   // [i][j]
	Overall    []float64     // [i]
	Recorded   int
	Failures   int
	Challenger int // rows [0, Challenger) are reported as challengers
}

// Snapshot derives a Table for the given entrants and maps.
func (a *Aggregator) Snapshot(entrants []model.Competitor, maps []string) Table {
	t := Table{
		Entrants:   entrants,
		Maps:       maps,
		Rates:      make([][][]float64, a.n),
		Played:     make([][][]bool, a.n),
		MapMeans:   make([][]float64, a.n),
		PairMeans:  make([][]float64, a.n),
		Overall:    make([]float64, a.n),
		Recorded:   a.recorded,
		Failures:   a.failures,
		Challenger: a.n,
	}
	for i := 0; i < a.n; i++ {
		t.Rates[i] = make([][]float64, a.n)
		t.Played[i] = make([][]bool, a.n)
		t.PairMeans[i] = make([]float64, a.n)
		t.MapMeans[i] = make([]float64, a.maps)
		for j := 0; j < a.n; j++ {
			t.Rates[i][j] = make([]float64, a.maps)
			t.Played[i][j] = make([]bool, a.maps)
			for m := 0; m < a.maps; m++ {
				t.Rates[i][j][m], t.Played[i][j][m] = a.Rate(i, j, m)
			}
			t.PairMeans[i][j] = a.PairMean(i, j)
		}
		for m := 0; m < a.maps; m++ {
			t.MapMeans[i][m] = a.MapMean(i, m)
		}
		t.Overall[i] = a.Overall(i)
	}
	return t
}

// WithChallengers limits challenger rows to the first n entrants.
func (t Table) WithChallengers(n int) Table {
	if n > 0 && n <= len(t.Overall) {
		t.Challenger = n
	}
	return t
}
