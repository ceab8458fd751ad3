package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTurn(t *testing.T, role Role, text string) Turn {
	t.Helper()
	turn, err := NewTurn(role, Text(text))
	require.NoError(t, err)
	return turn
}

func texts(turns []Turn) []string {
	out := make([]string, len(turns))
	for i, turn := range turns {
		out[i] = string(turn.Role()) + ":" + turn.Text()
	}
	return out
}

func TestTranscriptRoundTrip(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)

	var want []Turn
	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		turn := mustTurn(t, role, fmt.Sprintf("turn %d", i))
		want = append(want, turn)
		require.NoError(t, tr.Append(turn))
	}

	assert.Equal(t, want, tr.History())
	assert.Equal(t, 10, tr.Len())
}

func TestTranscriptHistoryIsACopy(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)
	require.NoError(t, tr.Append(mustTurn(t, RoleUser, "Hello")))

	h := tr.History()
	h[0] = mustTurn(t, RoleUser, "tampered")
	assert.Equal(t, "Hello", tr.History()[0].Text())
}

func TestTranscriptAppendRejectsZeroTurn(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)
	err := tr.Append(mustTurn(t, RoleUser, "Hello"), Turn{})
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, tr.Len())
}

func TestTranscriptResetIdempotent(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)
	tr.Reset()
	assert.Empty(t, tr.History())

	require.NoError(t, tr.Append(mustTurn(t, RoleUser, "Hello"), mustTurn(t, RoleAssistant, "Hi")))
	tr.Reset()
	tr.Reset()
	assert.Empty(t, tr.History())
	assert.Equal(t, 0, tr.Tokens())
}

func TestTranscriptMaxTurns(t *testing.T) {
	tr := NewTranscript(Policy{MaxTurns: 4}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Append(
			mustTurn(t, RoleUser, fmt.Sprintf("q%d", i)),
			mustTurn(t, RoleAssistant, fmt.Sprintf("a%d", i)),
		))
	}
	assert.Equal(t, []string{"user:q1", "assistant:a1", "user:q2", "assistant:a2"}, texts(tr.History()))
}

func TestTranscriptMaxTurnsOddDropsLeadingAssistant(t *testing.T) {
	tr := NewTranscript(Policy{MaxTurns: 3}, nil)
	for i := 0; i < 2; i++ {
		require.NoError(t, tr.Append(
			mustTurn(t, RoleUser, fmt.Sprintf("q%d", i)),
			mustTurn(t, RoleAssistant, fmt.Sprintf("a%d", i)),
		))
	}
	// Evicting q0 leaves a0 in front, which is dropped too.
	assert.Equal(t, []string{"user:q1", "assistant:a1"}, texts(tr.History()))
}

func TestTranscriptMaxTokens(t *testing.T) {
	// Each 8-char ASCII turn counts as 2 tokens.
	tr := NewTranscript(Policy{MaxTokens: 5}, nil)
	require.NoError(t, tr.Append(mustTurn(t, RoleUser, "question"), mustTurn(t, RoleAssistant, "answer01")))
	assert.Equal(t, 4, tr.Tokens())

	require.NoError(t, tr.Append(mustTurn(t, RoleUser, "followup"), mustTurn(t, RoleAssistant, "answer02")))
	assert.Equal(t, []string{"user:followup", "assistant:answer02"}, texts(tr.History()))
	assert.Equal(t, 4, tr.Tokens())
}

func TestTranscriptSetPolicyAppliesImmediately(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Append(
			mustTurn(t, RoleUser, fmt.Sprintf("q%d", i)),
			mustTurn(t, RoleAssistant, fmt.Sprintf("a%d", i)),
		))
	}
	tr.SetPolicy(Policy{MaxTurns: 2})
	assert.Equal(t, []string{"user:q2", "assistant:a2"}, texts(tr.History()))
	assert.Equal(t, Policy{MaxTurns: 2}, tr.Policy())
}

func TestTranscriptConcurrentBatchesStayContiguous(t *testing.T) {
	tr := NewTranscript(Policy{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, _ := UserText(fmt.Sprintf("q%d", i))
			a, _ := AssistantText(fmt.Sprintf("a%d", i))
			assert.NoError(t, tr.Append(q, a))
		}(i)
	}
	wg.Wait()

	h := tr.History()
	require.Len(t, h, 100)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, RoleUser, h[i].Role())
		assert.Equal(t, RoleAssistant, h[i+1].Role())
		assert.Equal(t, h[i].Text()[1:], h[i+1].Text()[1:])
	}
}
