package llm

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// maxChunkChars is the largest text sent as a single embedding input.
	// Longer texts are split into chunks and their vectors averaged.
	maxChunkChars = 30000

	// batchBudgetChars caps the total characters per embedding request.
	batchBudgetChars = 80000

	// batchPacing is the pause between consecutive embedding requests.
	batchPacing = 100 * time.Millisecond
)

// EmbeddingBatcher turns arbitrary document texts into vectors while
// respecting provider input limits: oversized texts are chunked and the
// chunk vectors averaged, requests are packed up to a character budget,
// and consecutive requests are paced.
type EmbeddingBatcher struct {
	client Client
	model  string
	logger hclog.Logger

	// sleep is swapped in tests.
	sleep func(context.Context, time.Duration) error
}

// NewEmbeddingBatcher creates a batcher over the given client. An empty
// model uses the provider default.
func NewEmbeddingBatcher(client Client, model string, logger hclog.Logger) *EmbeddingBatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EmbeddingBatcher{
		client: client,
		model:  model,
		logger: logger.Named("embeddings"),
		sleep:  sleepCtx,
	}
}

// EmbedAll returns one vector per input text, order-preserving. Empty or
// whitespace-only texts get a nil slot instead of being sent to the
// provider.
func (b *EmbeddingBatcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Expand inputs into chunks, remembering which source slot each chunk
	// feeds so averaging can reassemble them.
	type chunkRef struct {
		slot int
		text string
	}
	var chunks []chunkRef
	chunkCounts := make([]int, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, c := range splitChunks(text) {
			chunks = append(chunks, chunkRef{slot: i, text: c})
			chunkCounts[i]++
		}
	}
	if len(chunks) == 0 {
		return out, nil
	}

	// Pack chunks into requests under the character budget. A single chunk
	// larger than the budget still goes out alone.
	vectors := make([][]float32, 0, len(chunks))
	start := 0
	firstRequest := true
	for start < len(chunks) {
		end := start
		budget := 0
		for end < len(chunks) {
			size := len(chunks[end].text)
			if end > start && budget+size > batchBudgetChars {
				break
			}
			budget += size
			end++
		}

		if !firstRequest {
			if err := b.sleep(ctx, batchPacing); err != nil {
				return nil, err
			}
		}
		firstRequest = false

		batch := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			batch = append(batch, c.text)
		}

		b.logger.Debug("embedding batch",
			"inputs", len(batch),
			"chars", budget,
		)
		vs, err := b.client.Embed(ctx, batch, b.model)
		if err != nil {
			return nil, err
		}
		if len(vs) != len(batch) {
			return nil, NewParseError("embedding count mismatch")
		}
		vectors = append(vectors, vs...)
		start = end
	}

	// Reassemble: average the chunk vectors of each source text.
	cursor := 0
	for i, n := range chunkCounts {
		if n == 0 {
			continue
		}
		out[i] = meanVectors(vectors[cursor : cursor+n])
		cursor += n
	}
	return out, nil
}

// splitChunks breaks a text into pieces of at most maxChunkChars. Each cut
// prefers a sentence boundary in the final fifth of the window, then a
// space, then a hard cut.
func splitChunks(text string) []string {
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > maxChunkChars {
		window := rest[:maxChunkChars]
		cut := len(window)

		tail := int(float64(maxChunkChars) * 0.8)
		if idx := strings.LastIndex(window[tail:], ". "); idx >= 0 {
			cut = tail + idx + 2
		} else if idx := strings.LastIndex(window[tail:], " "); idx >= 0 {
			cut = tail + idx + 1
		}

		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

// meanVectors returns the componentwise mean. A single vector is returned
// as-is.
func meanVectors(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	if len(vs) == 1 {
		return vs[0]
	}

	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(len(vs)))
	}
	return mean
}
