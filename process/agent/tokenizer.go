package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter lazily initializes a single cl100k_base tiktoken encoding
// shared by every llm agent instance, the way
// llm/tokenizer/tiktoken.go defers its encoder construction until first
// use. Counting is informational only: a failure to initialize never
// blocks an agent, it just omits the token_count field from the audit
// message.
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

var sharedTokenCounter tokenCounter

func (t *tokenCounter) count(text string) (int, bool) {
	t.once.Do(func() {
		t.enc, t.err = tiktoken.GetEncoding("cl100k_base")
	})
	if t.err != nil || t.enc == nil {
		return 0, false
	}
	return len(t.enc.Encode(text, nil, nil)), true
}
