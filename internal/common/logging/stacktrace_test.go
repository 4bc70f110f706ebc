package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStack() error {
	return errors.New("origin")
}

func TestExtractStack(t *testing.T) {
	origin := newStack()
	tests := map[string]struct {
		err      error
		hasStack bool
	}{
		"nil":                 {err: nil},
		"plain error":         {err: fmt.Errorf("plain")},
		"pkg error":           {err: origin, hasStack: true},
		"wrapped with stdlib": {err: fmt.Errorf("outer: %w", origin), hasStack: true},
		"wrapped twice":       {err: errors.Wrap(errors.WithMessage(origin, "middle"), "outer"), hasStack: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			stack := ExtractStack(tc.err)
			assert.Equal(t, tc.hasStack, stack != nil)
		})
	}
}

func TestExtractStack_ReturnsDeepest(t *testing.T) {
	origin := newStack()
	wrapped := errors.Wrap(origin, "outer")

	stack := ExtractStack(wrapped)
	require.NotNil(t, stack)
	assert.Contains(t, fmt.Sprintf("%+v", stack[0]), "newStack")
}

func TestWithStacktrace(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := logrus.New()
	logger.SetOutput(buf)

	WithStacktrace(logrus.NewEntry(logger), newStack()).Error("failed")
	assert.Contains(t, buf.String(), Stacktrace+"=")
	assert.Contains(t, buf.String(), "error=origin")
}
