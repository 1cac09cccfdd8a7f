// Package registry implements the connection pool registry core: a
// process-wide, endpoint-keyed index of mutually-exclusive connection
// handles handed out under timed exclusive ownership.
//
// The registry groups Node values into per-endpoint Pools, indexes Pools in
// a fixed-size hash Table guarded by a single readers-writer lock, and
// coordinates acquisition through a per-node test-and-set lock bit plus a
// single-wake wait queue. Socket construction, health probing, statistics
// export, and configuration are all external collaborators — this package
// never performs I/O and never imports anything outside the standard
// library and its own hashing dependency.
package registry

// Enabled is the compile-time toggle for the registry subsystem (spec.md
// §6). A larger program embedding this package gates registry wiring on
// this constant; there is no runtime switch.
const Enabled = true

// BucketCount is the fixed number of chains in the Table's bucket array.
// Bucket count is fixed at compile time; the table never resizes.
const BucketCount = 256
