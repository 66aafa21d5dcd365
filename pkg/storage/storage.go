package storage

// Storage defines the root interface for the record-store data layer.
// It composes all available operations. Components should depend on the
// more granular interfaces (GroupReader, GroupWriter, ContributionStore)
// instead of this one.
type Storage interface {
	GroupStore
	ContributionStore
}

// GroupStore combines the reader and writer interfaces.
type GroupStore interface {
	GroupReader
	GroupWriter
}
