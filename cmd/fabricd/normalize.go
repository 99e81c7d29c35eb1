package main

import "golang.org/x/text/unicode/norm"

// normalizeScopePath folds a CLI-supplied scope path to NFC so two
// byte-distinct-but-visually-identical paths (e.g. a combining-accent
// variant from a copy-pasted terminal) don't address two different
// entries in the lock table and sync graph.
func normalizeScopePath(path string) string {
	return norm.NFC.String(path)
}
