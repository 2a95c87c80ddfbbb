// Package tournament expands rosters into the matchups of a batch.
package tournament

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/matchbench/internal/domain/model"
)

// ErrEmptyPlan is returned when a roster cannot produce any matchup.
var ErrEmptyPlan = errors.New("tournament plan is empty")

// Mode is the shape of a tournament.
type Mode string

const (
	// ModeRoundRobin plays every competitor against every other competitor.
	ModeRoundRobin Mode = "round-robin"
	// ModeGauntlet plays every challenger against a fixed reference set.
	ModeGauntlet Mode = "gauntlet"
)

// Plan is the full list of matchups of a batch and the tensor index space they use.
type Plan struct {
	Mode     Mode
	Entrants []model.Competitor // tensor index -> competitor
	Maps     []string
	Reps     int
	Matchups []model.Matchup
}

// Challengers is the number of leading entrants that are under evaluation.
// In a round-robin every entrant is a challenger.
func (p *Plan) Challengers() int {
	n := 0
	for _, e := range p.Entrants {
		if e.Roster == model.RosterLatest {
			n++
		}
	}
	return n
}

// Seeds returns the deterministic seed pair for a repetition on a map.
func Seeds(rep, mapIndex, numMaps int) (int64, int64) {
	a := int64(2 * (rep*numMaps + mapIndex))
	return a, a + 1
}

// RoundRobin plays every ordered pair (i, j), i != j, on every map reps times.
func RoundRobin(competitors []model.Competitor, maps []string, reps int) (*Plan, error) {
	if len(competitors) < 2 || len(maps) == 0 || reps < 1 {
		return nil, fmt.Errorf("%w: %d competitors, %d maps, %d reps", ErrEmptyPlan, len(competitors), len(maps), reps)
	}

	p := &Plan{
		Mode:     ModeRoundRobin,
		Entrants: tag(competitors, model.RosterLatest),
		Maps:     maps,
		Reps:     reps,
	}
	p.Matchups = make([]model.Matchup, 0, len(competitors)*(len(competitors)-1)*len(maps)*reps)

	for i := range p.Entrants {
		for j := range p.Entrants {
			if i == j {
				continue
			}
			for m, name := range maps {
				for r := 0; r < reps; r++ {
					seedA, seedB := Seeds(r, m, len(maps))
					p.Matchups = append(p.Matchups, model.Matchup{
						Home:       i,
						Away:       j,
						A:          p.Entrants[i],
						B:          p.Entrants[j],
						Map:        name,
						MapIndex:   m,
						Repetition: r,
						SeedA:      seedA,
						SeedB:      seedB,
					})
				}
			}
		}
	}
	return p, nil
}

// Gauntlet plays every challenger against every reference on every map reps
// times, once with the challenger as side A and once swapped.
//
// Challengers occupy tensor indices [0, C) and references [C, C+R).
func Gauntlet(challengers, references []model.Competitor, maps []string, reps int) (*Plan, error) {
	if len(challengers) == 0 || len(references) == 0 || len(maps) == 0 || reps < 1 {
		return nil, fmt.Errorf("%w: %d challengers, %d references, %d maps, %d reps",
			ErrEmptyPlan, len(challengers), len(references), len(maps), reps)
	}

	c := len(challengers)
	p := &Plan{
		Mode:     ModeGauntlet,
		Entrants: append(tag(challengers, model.RosterLatest), tag(references, model.RosterReference)...),
		Maps:     maps,
		Reps:     reps,
	}
	p.Matchups = make([]model.Matchup, 0, c*len(references)*len(maps)*reps*2)

	for i := 0; i < c; i++ {
		for j := c; j < len(p.Entrants); j++ {
			for m, name := range maps {
				for r := 0; r < reps; r++ {
					seedA, seedB := Seeds(r, m, len(maps))
					for _, swapped := range []bool{false, true} {
						mu := model.Matchup{
							Home:       i,
							Away:       j,
							A:          p.Entrants[i],
							B:          p.Entrants[j],
							Map:        name,
							MapIndex:   m,
							Repetition: r,
							Swapped:    swapped,
							SeedA:      seedA,
							SeedB:      seedB,
						}
						if swapped {
							mu.A, mu.B = mu.B, mu.A
						}
						p.Matchups = append(p.Matchups, mu)
					}
				}
			}
		}
	}
	return p, nil
}

// Jobs assigns every matchup a job ID and the invocation produced by build.
func (p *Plan) Jobs(build func(model.Matchup) (model.Invocation, error)) ([]model.Job, error) {
	jobs := make([]model.Job, 0, len(p.Matchups))
	for i, m := range p.Matchups {
		inv, err := build(m)
		if err != nil {
			return nil, fmt.Errorf("matchup %d (%s vs %s on %s): %w", i, m.A.Name, m.B.Name, m.Map, err)
		}
		jobs = append(jobs, model.Job{
			ID:         uuid.NewString(),
			Seq:        i,
			Matchup:    m,
			Invocation: inv,
		})
	}
	return jobs, nil
}

func tag(cs []model.Competitor, roster model.Roster) []model.Competitor {
	out := make([]model.Competitor, len(cs))
	for i, c := range cs {
		c.Roster = roster
		out[i] = c
	}
	return out
}
