// Package persist writes whole files in the background with atomic replace.
package persist
