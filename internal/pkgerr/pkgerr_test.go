package pkgerr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAsString(t *testing.T) {
	msg, details := AsString(nil)
	assert.Empty(t, msg)
	assert.Empty(t, details)

	msg, details = AsString(errors.New("Cannot find source"))
	assert.Equal(t, "Cannot find source", msg)
	assert.Empty(t, details)

	root := errors.New("connection refused")
	msg, details = AsString(errors.Wrap(root, "Download failed"))
	assert.Equal(t, "Download failed", msg)
	assert.Equal(t, "connection refused", details)
}

func TestLastError(t *testing.T) {
	var e LastError
	e.SetError(errors.Wrap(errors.New("no such file"), "read repomd.xml"))
	assert.Equal(t, "read repomd.xml", e.Message())
	assert.Equal(t, "no such file", e.Details())

	e.SetWithPrefix("repo-oss", errors.New("Valid metadata not found"))
	assert.Equal(t, "repo-oss: Valid metadata not found", e.Message())
	assert.Empty(t, e.Details())
}
