package assembler

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/dlyss/ai-agent-framework/internal/core"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// TokenSize measures text in cl100k_base tokens. The encoding is loaded
// lazily on first use; if loading fails (the BPE data is fetched over
// the network) it falls back to counting runes.
func TokenSize(text string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encodingErr != nil {
		return core.RuneSize(text)
	}
	return len(encoding.Encode(text, nil, nil))
}
