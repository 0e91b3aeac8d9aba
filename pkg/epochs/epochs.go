// Package epochs derives the ordered acquisition epoch list from an
// interferogram network, along with the cumulative time spans used by the
// temporal filter and the master/slave index lookup used during
// reconstruction.
package epochs

import (
	"fmt"
	"sort"
	"time"

	"insaraps/pkg/raster"
)

// daysPerYear converts day offsets into decimal years.
const daysPerYear = 365.25

// List is an ordered, deduplicated sequence of acquisition epochs with
// cumulative spans in years relative to the first epoch.
type List struct {
	Dates []time.Time

	// Spans[i] is the time of Dates[i] in years since Dates[0].
	// Strictly increasing.
	Spans []float64

	index map[time.Time]int
}

// Build constructs the epoch list from the master and slave dates of all
// interferograms in the network.
func Build(ifgs []*raster.Ifg) (*List, error) {
	if len(ifgs) == 0 {
		return nil, fmt.Errorf("cannot build epoch list from empty interferogram set")
	}

	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, ifg := range ifgs {
		for _, d := range []time.Time{ifg.Master(), ifg.Slave()} {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	l := &List{
		Dates: dates,
		Spans: make([]float64, len(dates)),
		index: make(map[time.Time]int, len(dates)),
	}
	for i, d := range dates {
		l.Spans[i] = d.Sub(dates[0]).Hours() / 24 / daysPerYear
		l.index[d] = i
	}
	return l, nil
}

// Count returns the number of distinct epochs.
func (l *List) Count() int { return len(l.Dates) }

// Index returns the position of an acquisition date in the epoch list.
func (l *List) Index(date time.Time) (int, error) {
	i, ok := l.index[date]
	if !ok {
		return 0, fmt.Errorf("date %s is not in the epoch list", date.Format("2006-01-02"))
	}
	return i, nil
}

// PairIndices returns the epoch indices of an interferogram's master and
// slave acquisitions.
func (l *List) PairIndices(ifg *raster.Ifg) (master, slave int, err error) {
	if master, err = l.Index(ifg.Master()); err != nil {
		return 0, 0, err
	}
	if slave, err = l.Index(ifg.Slave()); err != nil {
		return 0, 0, err
	}
	return master, slave, nil
}
