package sqlite

import (
	"sync"
)

// Stores is a lazy registry of per-symbol stores. A store is opened on
// first use and lives until Close; no store ever sees another symbol's
// data.
type Stores struct {
	dir  string
	opts []Option

	mu     sync.Mutex
	stores map[string]*Store
}

func NewStores(dir string, opts ...Option) *Stores {
	return &Stores{
		dir:    dir,
		opts:   opts,
		stores: make(map[string]*Store),
	}
}

// ForSymbol returns the store for symbol, opening it on first call.
func (s *Stores) ForSymbol(symbol string) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[symbol]; ok {
		return st, nil
	}
	st, err := Open(s.dir, symbol, s.opts...)
	if err != nil {
		return nil, err
	}
	s.stores[symbol] = st
	return st, nil
}

// Close closes every open store, returning the first error seen.
func (s *Stores) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for symbol, st := range s.stores {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.stores, symbol)
	}
	return first
}
