//go:build !linux

package lockfile

func probeLockTable(string) (held, ok bool) { return false, false }
