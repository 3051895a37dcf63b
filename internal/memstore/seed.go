package memstore

import (
	"github.com/jonathan/shift-backfill/internal/demo"
)

// Seed loads a demo dataset.
func (s *Store) Seed(data demo.Dataset) {
	s.PutClient(data.Client)
	for _, w := range data.Workers {
		s.PutWorker(w)
	}
	s.PutShift(data.Shift)
}
