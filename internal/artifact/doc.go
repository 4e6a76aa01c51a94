// Package artifact locates, names, validates and publishes the timestamped
// files and directories that pipeline phases exchange.
//
// Every artifact kind has a [Location]: a directory, a name prefix, an
// extension, and a [Shape]. Names follow <prefix>_<YYYYMMDD_HHMMSS><ext>,
// so the lexicographically greatest name is also the newest. [Store.Current]
// relies on that and never parses mtimes.
//
// Outputs are written to a hidden staging path created by [Store.Stage] and
// only become visible to discovery once [Store.Publish] renames them into
// place. Discovery itself never writes.
package artifact
