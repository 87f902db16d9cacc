package strpool

import "sync"

// Ident is an interned identifier. Comparing two Idents compares their pool
// tags, so equality is a single integer compare regardless of length.
// The zero Ident is the empty identifier.
type Ident uint32

var pool = struct {
	mu      sync.Mutex
	strings []string
	index   map[string]Ident
}{
	strings: []string{""},
	index:   map[string]Ident{"": 0},
}

// Intern returns the Ident for s, assigning a fresh tag on first sight.
func Intern(s string) Ident {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if id, ok := pool.index[s]; ok {
		return id
	}
	id := Ident(len(pool.strings))
	pool.strings = append(pool.strings, s)
	pool.index[s] = id
	return id
}

func (id Ident) String() string {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.strings[id]
}

// IsEmpty reports whether id is the empty identifier.
func (id Ident) IsEmpty() bool {
	return id == 0
}
