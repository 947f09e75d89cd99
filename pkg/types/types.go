package types

// SequenceNumber orders the committed changes of a collection. It grows by
// one for every operation that produced a new snapshot.
type SequenceNumber uint64
