// Package fileutil provides small filesystem helpers.
//
// EnsureDir and EnsureDirForFile create directories recursively and are used
// when preparing the launcher state directory, the node database directory,
// and the wallet database directory before spawning the child processes.
package fileutil
