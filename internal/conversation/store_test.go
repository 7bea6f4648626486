package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/provider"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore()
	c := store.Create(ModeConcise, "viewing: holdings page")

	got, ok := store.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, ModeConcise, got.Mode())
	assert.Equal(t, 1, store.Count())

	_, ok = store.Get("nope")
	assert.False(t, ok)
}

func TestCreateDefaultsToAnalystMode(t *testing.T) {
	c := NewStore().Create("", "")
	assert.Equal(t, ModeAnalyst, c.Mode())
}

func TestSingleActiveRun(t *testing.T) {
	c := NewStore().Create(ModeAnalyst, "")

	first, err := c.BeginRun()
	require.NoError(t, err)
	require.NoError(t, first.Begin())

	_, err = c.BeginRun()
	assert.ErrorIs(t, err, ErrActiveRun)

	active, ok := c.ActiveRun()
	require.True(t, ok)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, first.Finish())

	second, err := c.BeginRun()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestHistoryIsCopied(t *testing.T) {
	c := NewStore().Create(ModeAnalyst, "")
	c.Append(provider.Message{Role: provider.RoleUser, Content: "hi"})

	history := c.History()
	require.Len(t, history, 1)
	history[0].Content = "mutated"

	assert.Equal(t, "hi", c.History()[0].Content)
}

func TestSystemPromptIncludesContext(t *testing.T) {
	c := NewStore().Create(ModeEducational, "viewing: risk page")
	prompt := c.SystemPrompt()
	assert.Contains(t, prompt, "portfolio analyst")
	assert.Contains(t, prompt, "learning about investing")
	assert.Contains(t, prompt, "viewing: risk page")
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"analyst", "concise", "educational"} {
		m, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), m)
	}
	_, err := ParseMode("verbose")
	assert.Error(t, err)
}
