// internal/runtime/snapshot.go
// Package runtime assembles the HTTP surface: the contract snapshot holder,
// the static endpoints and the catch-all dispatch route.
package runtime

import (
	"sync/atomic"

	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/contract"
)

// Snapshot holds the contract currently in force. Swaps are atomic: every
// request resolves against the snapshot captured at entry, so a reload
// never changes the rules mid-request.
type Snapshot struct {
	current  atomic.Pointer[contract.Contract]
	path     string
	resolver contract.ValidatorResolver
	logger   logger.Logger
}

func NewSnapshot(path string, resolver contract.ValidatorResolver, log logger.Logger) *Snapshot {
	return &Snapshot{path: path, resolver: resolver, logger: log}
}

// Load parses and validates the document, then swaps it in. On failure the
// previous contract, if any, keeps serving.
func (s *Snapshot) Load() error {
	c, err := contract.Load(s.path, s.resolver)
	if err != nil {
		return err
	}
	s.current.Store(c)
	s.logger.Info("contract snapshot loaded", map[string]interface{}{
		"contract":   c.ID,
		"version":    c.Version,
		"operations": len(c.Operations),
	})
	return nil
}

// Current returns the contract in force. Nil only before the first Load.
func (s *Snapshot) Current() *contract.Contract {
	return s.current.Load()
}
