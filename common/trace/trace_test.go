package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/nutritrackr/common/trace"
)

func TestEnsure(t *testing.T) {
	ctx := trace.Ensure(context.Background())
	id := trace.FromContext(ctx)
	assert.True(t, strings.HasPrefix(id, "t_"))

	// A context that already carries an ID keeps it.
	assert.Equal(t, id, trace.FromContext(trace.Ensure(ctx)))
	assert.Empty(t, trace.FromContext(context.Background()))
	assert.NotEqual(t, trace.GenerateID(), trace.GenerateID())
}
