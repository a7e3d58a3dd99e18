// Package position holds the in-memory PositionState tree and the pure
// grid-progress arithmetic layered on top of it.
package position

import "sync"

// Side is a hedge-mode position side.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// State is the leaf record of the user/strategy/symbol/side tree (spec §3).
type State struct {
	InPosition    bool
	ComulQty      float64
	AvgPrice      *float64
	EntryPrice    *float64
	Notional      float64
	AvgProgressCounter int
	AvgProgressReal    int
	ProcessVolume      float64
	IsTP               bool
	ProblemClosed      bool
	CTime              *int64

	// set once at startup, preserved across resets
	QtyPrecision   int
	PricePrecision int
}

// Snapshot is a value copy of the fields a decision must read consistently.
type Snapshot struct {
	InPosition bool
	AvgPrice   *float64
	EntryPrice *float64
	ComulQty   float64
}

// reset clears the mutable lifecycle fields back to the startup template
// (I1/I2/I3), preserving the precisions captured once at first init.
func (s *State) reset() {
	s.InPosition = false
	s.ComulQty = 0
	s.AvgPrice = nil
	s.EntryPrice = nil
	s.Notional = 0
	s.AvgProgressCounter = 1
	s.AvgProgressReal = 1
	s.ProcessVolume = 0
	s.IsTP = false
	s.ProblemClosed = false
	s.CTime = nil
}

func newDefaultState(qtyPrecision, pricePrecision int) *State {
	s := &State{QtyPrecision: qtyPrecision, PricePrecision: pricePrecision}
	s.reset()
	return s
}

// Path identifies one leaf of the position tree.
type Path struct {
	User     string
	Strategy string
	Symbol   string
	Side     Side
}

// Store is the locked four-level map user->strategy->symbol->side->*State.
// It is the sole owner of mutable position state (spec §4.1); every other
// component reads snapshots or mutates through Update/Reset.
type Store struct {
	mu    sync.RWMutex
	users map[string]map[string]map[string]map[Side]*State
}

func NewStore() *Store {
	return &Store{users: make(map[string]map[string]map[string]map[Side]*State)}
}

// Init creates a leaf with default values. Called once per configured
// (user, strategy, symbol, side) at startup.
func (st *Store) Init(p Path, qtyPrecision, pricePrecision int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	strategies, ok := st.users[p.User]
	if !ok {
		strategies = make(map[string]map[string]map[Side]*State)
		st.users[p.User] = strategies
	}
	symbols, ok := strategies[p.Strategy]
	if !ok {
		symbols = make(map[string]map[Side]*State)
		strategies[p.Strategy] = symbols
	}
	sides, ok := symbols[p.Symbol]
	if !ok {
		sides = make(map[Side]*State)
		symbols[p.Symbol] = sides
	}
	sides[p.Side] = newDefaultState(qtyPrecision, pricePrecision)
}

func (st *Store) leaf(p Path) *State {
	strategies, ok := st.users[p.User]
	if !ok {
		return nil
	}
	symbols, ok := strategies[p.Strategy]
	if !ok {
		return nil
	}
	sides, ok := symbols[p.Symbol]
	if !ok {
		return nil
	}
	return sides[p.Side]
}

// Get returns a consistent snapshot of the decision-relevant fields, or
// false if the path is not tracked.
func (st *Store) Get(p Path) (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.leaf(p)
	if s == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		InPosition: s.InPosition,
		AvgPrice:   s.AvgPrice,
		EntryPrice: s.EntryPrice,
		ComulQty:   s.ComulQty,
	}, true
}

// Full returns a value copy of the entire leaf state, or false if absent.
func (st *Store) Full(p Path) (State, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.leaf(p)
	if s == nil {
		return State{}, false
	}
	return *s, true
}

// Update runs mutator against the leaf under the write lock. Returns false
// if the path is not tracked.
func (st *Store) Update(p Path, mutator func(*State)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.leaf(p)
	if s == nil {
		return false
	}
	mutator(s)
	return true
}

// Reset reinitialises the mutable fields of a leaf to the default template
// (§3 Lifecycle, I1), preserving precisions. Returns false if untracked.
func (st *Store) Reset(p Path) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.leaf(p)
	if s == nil {
		return false
	}
	s.reset()
	return true
}

// Paths returns every tracked path, for iteration by the main loop and
// syncer. Order is unspecified.
func (st *Store) Paths() []Path {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []Path
	for user, strategies := range st.users {
		for strategy, symbols := range strategies {
			for symbol, sides := range symbols {
				for side := range sides {
					out = append(out, Path{User: user, Strategy: strategy, Symbol: symbol, Side: side})
				}
			}
		}
	}
	return out
}

// PathsForUser returns every tracked path for one user.
func (st *Store) PathsForUser(user string) []Path {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []Path
	strategies, ok := st.users[user]
	if !ok {
		return nil
	}
	for strategy, symbols := range strategies {
		for symbol, sides := range symbols {
			for side := range sides {
				out = append(out, Path{User: user, Strategy: strategy, Symbol: symbol, Side: side})
			}
		}
	}
	return out
}
