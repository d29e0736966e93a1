package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Loader draws episodes from a source in shuffled order. Once every window has been drawn,
// it reshuffles and starts over.
type Loader struct {
	src   Source
	r     *rand.Rand
	order []int
	pos   int
}

// NewLoader creates a loader. The same seed gives the same sequence of episodes.
func NewLoader(src Source, seed int64) (*Loader, error) {
	if src.Len() == 0 {
		return nil, errors.New("cannot load from an empty dataset")
	}
	l := &Loader{
		src: src,
		r:   rand.New(rand.NewSource(seed)),
	}
	l.shuffle()
	return l, nil
}

func (l *Loader) shuffle() {
	l.order = l.r.Perm(l.src.Len())
	l.pos = 0
}

// Next returns the next episode.
func (l *Loader) Next() (Episode, error) {
	if l.pos >= len(l.order) {
		l.shuffle()
	}
	idx := l.order[l.pos]
	l.pos++
	return l.src.Get(idx)
}
