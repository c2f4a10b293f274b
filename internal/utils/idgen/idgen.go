package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes used for flow entities.
const (
	PrefixFlow    = "flw"
	PrefixSection = "sec"
	PrefixStep    = "stp"
	PrefixAsset   = "aud"
)

var (
	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
)

func nextULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	if entropy == nil {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	}
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// New returns a lower-case "<prefix>_<ulid>" identifier.
func New(prefix string) string {
	return prefix + "_" + strings.ToLower(nextULID().String())
}

// HasPrefix reports whether value is a well-formed identifier of the given prefix.
func HasPrefix(value, prefix string) bool {
	rest, ok := strings.CutPrefix(value, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(rest))
	return err == nil
}
