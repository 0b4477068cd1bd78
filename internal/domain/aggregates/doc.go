// Package aggregates declares the write contracts of the revision core and
// the error codes every write reports.
package aggregates
