// Package aggregates implements the write paths of the revision core: the
// science object coordinator and bulk chain maintenance. Each write runs in
// one transaction owned here; repos and the revision engine only ever see
// the transaction they are handed.
package aggregates
