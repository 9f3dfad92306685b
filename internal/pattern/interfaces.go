// Package pattern extracts unparsed ingredient text, groups it into patterns,
// links similar patterns and resolves parsed names against the known catalog.
package pattern

// Matcher resolves a parsed name to a known entity id.
type Matcher interface {
	// Resolve returns the id of the entity whose name equals name, ignoring case.
	Resolve(name string) (id string, ok bool)
}

var _ Matcher = (*Resolver)(nil)
