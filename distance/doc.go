// Package distance provides the distance metrics used by leanvec indexes.
//
// All kernels operate on raw []float32 slices and assume both arguments
// share the index dimensionality; length checks happen at the API boundary,
// not in the hot loop.
package distance
