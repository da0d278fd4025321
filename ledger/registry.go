/*
registry.go - Kind registration and document code normalization

PURPOSE:
  Provides a registry for domain packages to register their document
  kinds, plus the code normalization rule shared by every kind.

HOW IT WORKS:
  1. A domain package defines its Kind values
  2. It registers them on init()
  3. The API layer resolves incoming kind discriminators through the
     registry and hands the concrete Kind to the engine

CODE NAMESPACE:
  Document codes are unique across ALL kinds while the owning document
  is live. Kinds only differ in the prefix a bare numeric code receives:
  a stored "102" under a kind with prefix "LR#" reads back as "LR#102".

SEE ALSO:
  - types.go:       Kind definition
  - documents/:     The registered kinds for this system
  - engine.go:      Uses IsCodeUnique at create and rename time
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// KIND REGISTRY
// =============================================================================

var (
	kindRegistry = make(map[string]Kind)
	registryMu   sync.RWMutex
)

// RegisterKind adds a kind to the global registry. Call from domain
// package init() functions. Registering the same ID twice panics: kinds
// are a closed configuration set and a collision is a programming error.
func RegisterKind(k Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := kindRegistry[k.ID]; exists {
		panic(fmt.Sprintf("document kind already registered: %s", k.ID))
	}
	kindRegistry[k.ID] = k
}

// LookupKind finds a registered kind by discriminator.
func LookupKind(id string) (Kind, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	k, ok := kindRegistry[id]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrKindNotRegistered, id)
	}
	return k, nil
}

// MustLookupKind finds a registered kind or panics. Use in tests or when
// the kind is known to exist.
func MustLookupKind(id string) Kind {
	k, err := LookupKind(id)
	if err != nil {
		panic(err)
	}
	return k
}

// Kinds returns all registered kinds, sorted by ID.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Kind, 0, len(kindRegistry))
	for _, k := range kindRegistry {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// CODE NORMALIZATION
// =============================================================================

// NormalizeCode uppercases a document code and, when the code is a bare
// number, prepends the kind's prefix. Codes imported from older data are
// stored bare; normalizing on first read keeps comparisons consistent.
func NormalizeCode(k Kind, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return code
	}
	if isDigits(code) {
		return k.CodePrefix + code
	}
	return code
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// =============================================================================
// CODE UNIQUENESS
// =============================================================================

// CodeChecker checks a candidate code against every kind's live
// documents. The Engine satisfies this.
type CodeChecker interface {
	IsCodeUnique(ctx context.Context, kind Kind, candidate string) (bool, error)
}

// IsCodeUnique reports whether the candidate code is unused by the live
// documents of every kind. The candidate is normalized first.
func (e *Engine) IsCodeUnique(ctx context.Context, kind Kind, candidate string) (bool, error) {
	inUse, err := e.store.CodeInUse(ctx, NormalizeCode(kind, candidate))
	if err != nil {
		return false, err
	}
	return !inUse, nil
}
