package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/engram-ai/engram-go/pkg/core"
)

func TestErrorWrapsSentinel(t *testing.T) {
	err := core.NewError(core.KindInvalidScope, "Add", core.ErrNoScope)

	assert.ErrorIs(t, err, core.ErrNoScope)
	assert.Contains(t, err.Error(), "Add")
}

func TestErrorThroughDeepWrap(t *testing.T) {
	inner := core.NewError(core.KindNotFound, "Get", fmt.Errorf("%w: abc123", core.ErrMemoryNotFound))
	outer := fmt.Errorf("handling request: %w", inner)

	assert.ErrorIs(t, outer, core.ErrMemoryNotFound)
	assert.Equal(t, core.KindNotFound, core.KindOf(outer))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.Kind
	}{
		{"nil underlying", core.NewError(core.KindBackend, "Search", nil), core.KindBackend},
		{"provider", core.NewError(core.KindProvider, "Add", errors.New("timeout")), core.KindProvider},
		{"plain error", errors.New("not ours"), core.KindUnknown},
		{"wrapped", fmt.Errorf("outer: %w", core.NewError(core.KindInvalidArgument, "Update", core.ErrEmptyContent)), core.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.KindOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid_scope", core.KindInvalidScope.String())
	assert.Equal(t, "not_found", core.KindNotFound.String())
	assert.Equal(t, "unknown", core.KindUnknown.String())
}

func TestErrorMessageWithNilUnderlying(t *testing.T) {
	err := core.NewError(core.KindBackend, "Reset", nil)
	assert.Equal(t, "Reset: backend", err.Error())
}
