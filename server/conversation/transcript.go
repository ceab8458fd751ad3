package conversation

import (
	"sync"

	"github.com/eapache/queue/v2"
)

// Policy bounds a transcript. Zero values mean unlimited.
type Policy struct {
	MaxTurns  int
	MaxTokens int
}

type entry struct {
	turn   Turn
	tokens int
}

// Transcript is the ordered history of one conversation. It is safe for
// concurrent use; each Append batch lands contiguously.
type Transcript struct {
	mu      sync.RWMutex
	turns   *queue.Queue[entry]
	tokens  int
	policy  Policy
	counter TokenCounter
}

// NewTranscript returns an empty transcript. A nil counter uses EstimateCounter.
func NewTranscript(policy Policy, counter TokenCounter) *Transcript {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Transcript{
		turns:   queue.New[entry](),
		policy:  policy,
		counter: counter,
	}
}

// Append adds turns at the end, then applies the retention policy. Either
// every turn is appended or, on ErrEmptyContent, none is.
func (t *Transcript) Append(turns ...Turn) error {
	for _, turn := range turns {
		if turn.content == nil || turn.content.IsEmpty() {
			return ErrEmptyContent
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, turn := range turns {
		n := t.counter.Count(turn.Text())
		t.turns.Add(entry{turn: turn, tokens: n})
		t.tokens += n
	}
	t.enforce()
	return nil
}

// enforce evicts from the front until both limits hold, then drops leading
// assistant turns so history opens on a user turn. Callers hold mu.
func (t *Transcript) enforce() {
	over := func() bool {
		if t.policy.MaxTurns > 0 && t.turns.Length() > t.policy.MaxTurns {
			return true
		}
		return t.policy.MaxTokens > 0 && t.tokens > t.policy.MaxTokens
	}

	evicted := false
	for t.turns.Length() > 0 && over() {
		t.tokens -= t.turns.Remove().tokens
		evicted = true
	}
	if !evicted {
		return
	}
	for t.turns.Length() > 0 && t.turns.Peek().turn.role == RoleAssistant {
		t.tokens -= t.turns.Remove().tokens
	}
}

// History returns a copy of the turns, most recent last.
func (t *Transcript) History() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, t.turns.Length())
	for i := range out {
		out[i] = t.turns.Get(i).turn
	}
	return out
}

// Len returns the number of stored turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turns.Length()
}

// Tokens returns the counted size of the stored turns.
func (t *Transcript) Tokens() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tokens
}

// Reset clears the transcript. Resetting an empty transcript is a no-op.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = queue.New[entry]()
	t.tokens = 0
}

// SetPolicy replaces the retention policy and applies it immediately.
func (t *Transcript) SetPolicy(policy Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = policy
	t.enforce()
}

// Policy returns the current retention policy.
func (t *Transcript) Policy() Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policy
}
