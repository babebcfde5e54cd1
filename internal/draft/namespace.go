package draft

import (
	"errors"
	"sort"
)

// ErrUnknownNamespace is returned when a caller names a namespace outside
// the registered set.
var ErrUnknownNamespace = errors.New("unknown namespace")

const keyPrefix = "tokenforge_"

// namespaces is the closed set of logical namespaces. Each maps to one
// storage key; related wizard tools share a namespace and therefore one
// document. Adding a tool to an existing namespace needs no change here.
var namespaces = map[string]string{
	"jurisdiction": keyPrefix + "jurisdiction",
	"structure":    keyPrefix + "structure",
	"tokenomics":   keyPrefix + "tokenomics",
	"distribution": keyPrefix + "distribution",
	"payout":       keyPrefix + "payout",
	"compare":      keyPrefix + "compare",
	"reports":      keyPrefix + "reports",
}

// NamespaceKey resolves a logical namespace name to its storage key.
func NamespaceKey(name string) (string, error) {
	key, ok := namespaces[name]
	if !ok {
		return "", ErrUnknownNamespace
	}
	return key, nil
}

// Namespaces returns the registered logical names in sorted order.
func Namespaces() []string {
	names := make([]string, 0, len(namespaces))
	for name := range namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
