package registry

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// seed is a one-time, process-lifetime random value mixed into every key
// derivation (spec.md §4.1). It is initialized lazily on first use and is
// stable thereafter, so two lookups of the same (ip, port) within one
// process always produce the same key.
var (
	seedOnce  sync.Once
	seedValue uint32
)

func processSeed() uint32 {
	seedOnce.Do(func() {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand failure is effectively unrecoverable; fall back to
			// a fixed constant rather than leaving the seed at zero, which
			// would make the hash trivially predictable but still correct.
			seedValue = 0x9e3779b9
			return
		}
		seedValue = binary.LittleEndian.Uint32(b[:])
	})
	return seedValue
}

// key computes the deterministic 32-bit endpoint hash described in
// spec.md §4.1: a general-purpose mixing hash over the two 32-bit words
// (parsed IPv4 address, port), salted with the process seed.
//
// Parse failure returns ErrInvalidInput.
func key(ip string, port uint16) (uint32, error) {
	addr, err := parseIPv4(ip)
	if err != nil {
		return 0, err
	}

	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(port))
	binary.LittleEndian.PutUint32(buf[8:12], processSeed())

	h := xxhash.Sum64(buf[:])
	return uint32(h>>32) ^ uint32(h), nil
}

// parseIPv4 parses a dotted-quad IPv4 address into a single 32-bit word.
// The key derivation contract is specified for IPv4 endpoints only
// (spec.md §1 Non-goals); IPv6 generalizes the hashing contract but is out
// of scope.
func parseIPv4(ip string) (uint32, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return 0, fmt.Errorf("%w: %q is not a valid IP address", ErrInvalidInput, ip)
	}
	v4 := addr.To4()
	if v4 == nil {
		return 0, fmt.Errorf("%w: %q is not an IPv4 dotted-quad", ErrInvalidInput, ip)
	}
	return binary.BigEndian.Uint32(v4), nil
}
