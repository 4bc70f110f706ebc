package util

import (
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCloseResource(t *testing.T) {
	tests := map[string]struct {
		err      error
		warnings int
	}{
		"clean close":  {err: nil, warnings: 0},
		"failed close": {err: errors.New("broken pipe"), warnings: 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			c := &closer{err: tc.err}
			CloseResource(log.NewEntry(logger), "engine", c)
			assert.True(t, c.closed)
			assert.Len(t, hook.AllEntries(), tc.warnings)
		})
	}
}

func TestCloseResource_Nil(t *testing.T) {
	logger, hook := test.NewNullLogger()
	CloseResource(log.NewEntry(logger), "engine", nil)
	assert.Empty(t, hook.AllEntries())
}

func TestClock(t *testing.T) {
	assert.Equal(t, time.UTC, (&DefaultClock{}).Now().Location())
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, (&DummyClock{T: fixed}).Now())
}
