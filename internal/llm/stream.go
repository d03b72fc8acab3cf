package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const streamDoneMarker = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// readStream consumes server-sent events until the end-of-stream
// sentinel. Fragments are forwarded to onDelta as they arrive; the
// candidate set is assembled only once the sentinel is seen. A stream
// that ends early yields ErrIncompleteStream and no candidates.
func readStream(r io.Reader, n int, onDelta DeltaFunc) ([]Candidate, error) {
	builders := make([]strings.Builder, n)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	done := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == streamDoneMarker {
			done = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Tolerate fragments we cannot parse; the sentinel decides
			// whether the stream completed.
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Index < 0 || choice.Index >= n || choice.Delta.Content == "" {
				continue
			}
			builders[choice.Index].WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Index, choice.Delta.Content)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w (%w)", err, ErrIncompleteStream)
	}
	if !done {
		return nil, ErrIncompleteStream
	}

	cands := make([]Candidate, n)
	for i := range builders {
		cands[i] = ParseCandidate(i, builders[i].String())
	}
	return cands, nil
}
