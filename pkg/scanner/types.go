// Package scanner builds the run store from a full walk of the root
// directory.
//
// Layout of the root:
//
//	root/
//	  <experiment>/
//	    command.json          run metadata
//	    <file>                global step
//	    <digits>/.../<file>   that step
//	    <dir>/.../<file>      global step, nested category
//
// Every immediate subdirectory of the root is an experiment, even when it is
// empty. Content errors never fail a scan; directory errors do.
//
// Example usage:
//
//	sc := scanner.New(afero.NewOsFs(), ex, logger.Default(), scanner.Config{})
//	st, err := sc.Scan(ctx, "/runs")
//	if err != nil {
//	    log.Fatal(err)
//	}
package scanner

import "github.com/0xmhha/runmirror/pkg/store"

// DefaultWorkers is the default extraction concurrency.
const DefaultWorkers = 4

// Config contains scanner configuration.
type Config struct {
	// Workers bounds concurrent file extraction.
	// Default: 4
	Workers int

	// Store configures stores created by Scan.
	Store store.Config
}
