// Package gap detects missing grid points in persisted time-series data.
//
// A grid is the set of timestamps start, start+I, start+2I, ... < end for a
// fixed interval I. Data is expected at every grid point; a gap is a maximal
// contiguous run of grid points with no stored entry. Gap detection is pure
// computation with no I/O.
package gap
