package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/autom8ter/viewdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("wrap nil error", func(t *testing.T) {
		var err error
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Nil(t, err)
	})
	t.Run("wrap error", func(t *testing.T) {
		var err = fmt.Errorf("not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error", func(t *testing.T) {
		err := errors.New(errors.NotFound, "not found")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error then wrap", func(t *testing.T) {
		err := errors.New(0, "not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error then wrap then remove", func(t *testing.T) {
		err := errors.New(0, "not found")
		err = errors.Wrap(err, errors.NotFound, "")
		e := errors.Extract(err).RemoveError()
		assert.Empty(t, e.Err)
	})
	t.Run("error json string", func(t *testing.T) {
		err := errors.New(0, "not found")
		err = errors.Wrap(err, errors.NotFound, "")
		e := errors.Extract(err).RemoveError()
		assert.JSONEq(t, `{ "code":404, "messages": ["not found"]}`, e.Error())
	})
	t.Run("has code", func(t *testing.T) {
		err := errors.New(errors.Forbidden, "read only transaction")
		assert.True(t, errors.HasCode(err, errors.Forbidden))
		assert.False(t, errors.HasCode(err, errors.Configuration))
		assert.False(t, errors.HasCode(nil, errors.Forbidden))
		assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.Internal))
	})
	t.Run("unwrap", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := errors.Wrap(cause, errors.Internal, "failed to commit")
		assert.True(t, stderrors.Is(err, cause))
		assert.Contains(t, err.Error(), "disk full")
	})
}
