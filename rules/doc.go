// Package rules loads the path bypass/block list consulted before any
// authentication work.
//
// The file is YAML:
//
//	rules:
//	  pass:
//	    - /api/v2/nebryx/identity
//	  block:
//	    - /api/v2/nebryx/admin/internal
//
// Block wins over pass. The active [Set] is swapped atomically on reload, so
// readers never see a partially parsed file.
package rules
