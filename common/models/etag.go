package models

// ETagAny matches any ETag when passed as the expected ETag of an update.
const ETagAny = "*"

// ETag identifies a version of a mutable record, for optimistic locking.
type ETag string

func (e ETag) String() string {
	return string(e)
}
