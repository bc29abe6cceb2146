package synth

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
)

// Memo wraps a Client with memoization keyed by (model choice, question).
// Entries never expire: the cache lives for the process lifetime and is
// unbounded per session, which is the documented eviction policy. Only
// successful syntheses are cached; declines count as successes.
type Memo struct {
	choice ModelChoice
	client Client
	cache  *ttlcache.Cache[string, Query]
}

func NewMemo(choice ModelChoice, client Client) *Memo {
	return &Memo{
		choice: choice,
		client: client,
		cache:  ttlcache.New[string, Query](),
	}
}

func (m *Memo) key(question string) string {
	return string(m.choice) + "\x00" + question
}

// Synthesize serves repeat (question, model) pairs from the cache, avoiding
// repeat remote calls.
func (m *Memo) Synthesize(ctx context.Context, question string) (Query, error) {
	if item := m.cache.Get(m.key(question)); item != nil {
		return item.Value(), nil
	}

	q, err := m.client.Synthesize(ctx, question)
	if err != nil {
		return Query{}, err
	}
	m.cache.Set(m.key(question), q, ttlcache.NoTTL)
	return q, nil
}
