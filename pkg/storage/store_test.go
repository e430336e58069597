package storage

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStore struct{ id int }

func (nopStore) Get([]byte) ([]byte, error) { return nil, nil }
func (nopStore) Put([]byte, []byte) error   { return nil }
func (nopStore) Del([]byte) error           { return nil }
func (nopStore) Close() error               { return nil }

func TestRegistry(t *testing.T) {
	SetLogger(hclog.NewNullLogger())
	RegisterCallback(func() {
		RegisterFactory("first", func(hclog.Logger) (Storage, error) { return nopStore{1}, nil })
		RegisterFactory("first", func(hclog.Logger) (Storage, error) { return nopStore{2}, nil })
	})
	DoCallbacks()
	defer func() {
		delete(factories, "first")
		callbacks = nil
	}()

	s, err := Initialize("first")
	require.NoError(t, err)
	assert.Equal(t, nopStore{1}, s)
	assert.Contains(t, Stores(), "first")

	_, err = Initialize("second")
	var unknown *ErrUnknownFactory
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no store named second, have [first]", err.Error())
}
