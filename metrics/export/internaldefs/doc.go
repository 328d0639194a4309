// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by exporters. It performs no I/O.
package internaldefs
