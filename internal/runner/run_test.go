package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	tests := []struct {
		name     string
		steps    []func(*Run) error
		final    Status
		failStep int // index of the step expected to fail, -1 for none
	}{
		{
			name:     "pending to done",
			steps:    []func(*Run) error{(*Run).Begin, (*Run).Finish},
			final:    StatusDone,
			failStep: -1,
		},
		{
			name:     "pending to error",
			steps:    []func(*Run) error{(*Run).Begin, (*Run).Fail},
			final:    StatusError,
			failStep: -1,
		},
		{
			name:     "streaming abort",
			steps:    []func(*Run) error{(*Run).Begin, (*Run).Abort},
			final:    StatusAborted,
			failStep: -1,
		},
		{
			name:     "cannot finish before streaming",
			steps:    []func(*Run) error{(*Run).Finish},
			final:    StatusPending,
			failStep: 0,
		},
		{
			name:     "cannot abort a pending run",
			steps:    []func(*Run) error{(*Run).Abort},
			final:    StatusPending,
			failStep: 0,
		},
		{
			name:     "terminal status is immutable",
			steps:    []func(*Run) error{(*Run).Begin, (*Run).Finish, (*Run).Fail},
			final:    StatusDone,
			failStep: 2,
		},
		{
			name:     "done then abort rejected",
			steps:    []func(*Run) error{(*Run).Begin, (*Run).Finish, (*Run).Abort},
			final:    StatusDone,
			failStep: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun("conv-1")
			require.Equal(t, StatusPending, run.Status())

			for i, step := range tt.steps {
				err := step(run)
				if i == tt.failStep {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			}
			assert.Equal(t, tt.final, run.Status())
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusStreaming.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusAborted.Terminal())
}

func TestNextSeqIsGapless(t *testing.T) {
	run := NewRun("conv-1")
	for i := int64(0); i < 100; i++ {
		assert.Equal(t, i, run.NextSeq())
	}
}
