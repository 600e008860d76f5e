package cmd

import "sync"

// TuneStore holds live, overridable values for named tunables
// (original source: exa_cltune.c / exa_vltune.c). Every key has a
// compiled-in default; setting a key to the empty string restores that
// default rather than literally storing an empty value, so repeated
// k="" calls are idempotent (§8 round-trip/idempotence property).
type TuneStore struct {
	mu       sync.Mutex
	defaults map[string]string
	values   map[string]string
}

func NewTuneStore(defaults map[string]string) *TuneStore {
	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &TuneStore{defaults: defaults, values: values}
}

// Set applies v to k, or restores k's compiled-in default when v=="".
// It returns the value actually in effect afterward.
func (s *TuneStore) Set(k, v string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == "" {
		v = s.defaults[k]
	}
	s.values[k] = v
	return v
}

func (s *TuneStore) Get(k string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[k]
	return v, ok
}

func (s *TuneStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
