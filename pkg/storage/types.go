package storage

// Storage is an interfaces for a generic blobstore.  Get on a key
// that does not exist returns nil with no error.
type Storage interface {
	Get([]byte) ([]byte, error)
	Put([]byte, []byte) error
	Del([]byte) error

	Close() error
}
