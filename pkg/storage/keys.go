package storage

// Key schema for the order book state:
//
//   cfg:registration                  → RegistrationContext
//   ord:<address>                     → Order
//   q:<side>:<price><time><seq>       → owner address (price-time queue)
//   qi:<side>:<address>               → queue key of the owner's entry
//   seq:<name>                        → monotonically increasing counter
//   nonce:<address>                   → last request nonce accepted from address

// Namespace prefixes
const (
	PrefixConfig     = "cfg:"
	PrefixOrder      = "ord:"
	PrefixQueue      = "q:"
	PrefixQueueIndex = "qi:"
	PrefixSequence   = "seq:"
	PrefixNonce      = "nonce:"
)

// Key joins a namespace prefix with the given parts.
func Key(prefix string, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 0, n)
	k = append(k, prefix...)
	for _, p := range parts {
		k = append(k, p...)
	}
	return k
}

// KeyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "q:bid:" -> upper bound "q:bid;"
func KeyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil // prefix is all 0xff, no upper bound
}
