package brain

import (
	"context"
	"testing"

	"cortex/common"
	"cortex/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIntentHandler(memories *fakeMemories) (*IntentHandler, *Mode) {
	mode := NewMode(common.DefaultConfig())
	return NewIntentHandler(mode, memories), mode
}

func TestModeDirectiveSwitchesAndIsRemoved(t *testing.T) {
	handler, mode := newTestIntentHandler(&fakeMemories{})

	out := handler.Process(context.Background(), "user_1", "mode('work') let's focus", IntentFlags{Mode: true})
	assert.Equal(t, "let's focus", out)
	assert.Equal(t, "work", mode.Get())
}

func TestUnknownModeLeavesDirectiveInPlace(t *testing.T) {
	handler, mode := newTestIntentHandler(&fakeMemories{})

	out := handler.Process(context.Background(), "user_1", "mode('pirate') ahoy", IntentFlags{Mode: true})
	assert.Equal(t, "mode('pirate') ahoy", out)
	assert.Equal(t, "default", mode.Get())
}

func TestRememberDirectiveStoresMemory(t *testing.T) {
	memories := &fakeMemories{}
	handler, _ := newTestIntentHandler(memories)

	out := handler.Process(context.Background(), "user_1", "remember('birthday is in June') thanks", IntentFlags{Memory: true})
	assert.Equal(t, "thanks", out)
	assert.Equal(t, []string{"birthday is in June"}, memories.remembered)
}

func TestForgetDirectiveDeletesMemory(t *testing.T) {
	memories := &fakeMemories{}
	handler, _ := newTestIntentHandler(memories)

	out := handler.Process(context.Background(), "user_1", "forget('old address') done", IntentFlags{Memory: true})
	assert.Equal(t, "done", out)
	assert.Equal(t, []string{"old address"}, memories.forgotten)
}

func TestRecallDirectiveSubstitutesFacts(t *testing.T) {
	memories := &fakeMemories{recalled: []domain.Memory{
		{Id: "mem_1", Content: "prefers window seats"},
	}}
	handler, _ := newTestIntentHandler(memories)

	out := handler.Process(context.Background(), "user_1", "recall('travel') book a flight", IntentFlags{Memory: true})
	assert.Contains(t, out, "(recalled: - prefers window seats)")
	assert.Contains(t, out, "book a flight")
}

func TestRecallWithNoHitsLeavesDirective(t *testing.T) {
	handler, _ := newTestIntentHandler(&fakeMemories{})

	out := handler.Process(context.Background(), "user_1", "recall('nothing') hm", IntentFlags{Memory: true})
	assert.Equal(t, "recall('nothing') hm", out)
}

func TestDirectivesIgnoredWithoutFlags(t *testing.T) {
	memories := &fakeMemories{}
	handler, mode := newTestIntentHandler(memories)

	content := "mode('work') remember('secret')"
	out := handler.Process(context.Background(), "user_1", content, IntentFlags{})
	assert.Equal(t, content, out)
	assert.Equal(t, "default", mode.Get())
	assert.Empty(t, memories.remembered)
}

func TestUnknownDirectiveLeftAlone(t *testing.T) {
	handler, _ := newTestIntentHandler(&fakeMemories{})

	out := handler.Process(context.Background(), "user_1", "launch('rocket') now", IntentFlags{Mode: true, Memory: true})
	assert.Equal(t, "launch('rocket') now", out)
}

func TestMultipleDirectivesInOneMessage(t *testing.T) {
	memories := &fakeMemories{}
	handler, mode := newTestIntentHandler(memories)

	out := handler.Process(context.Background(), "user_1",
		"mode('guest') remember('guests visiting tonight') prep the house",
		IntentFlags{Mode: true, Memory: true})
	assert.Equal(t, "prep the house", out)
	assert.Equal(t, GuestMode, mode.Get())
	require.Len(t, memories.remembered, 1)
}

func TestProcessWithoutDirectivesIsIdentity(t *testing.T) {
	handler, _ := newTestIntentHandler(&fakeMemories{})

	content := "just a normal message (with parens) and 'quotes'"
	out := handler.Process(context.Background(), "user_1", content, IntentFlags{Mode: true, Memory: true})
	assert.Equal(t, content, out)
}
