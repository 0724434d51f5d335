// Package naming derives output paths, orders inputs in natural order and
// guards against two items of one batch writing the same output file.
package naming
