package letta

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
)

const maxSSELine = 1 << 20

type streamRequest struct {
	Messages     []streamMessage `json:"messages"`
	StreamTokens bool            `json:"stream_tokens"`
}

type streamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamMessage posts a user message and yields chunks of the reply.
// The sequence ends at [DONE] or end of body. A transport or decode error is
// yielded once and ends the sequence.
func (c *Client) StreamMessage(ctx context.Context, agentID, text string) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		body := streamRequest{
			Messages:     []streamMessage{{Role: "user", Content: text}},
			StreamTokens: true,
		}
		path := "/v1/agents/" + url.PathEscape(agentID) + "/messages/stream"
		req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
		if err != nil {
			yield(StreamChunk{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.stream.Do(req)
		if err != nil {
			yield(StreamChunk{}, fmt.Errorf("stream request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			yield(StreamChunk{}, newAPIError(resp.StatusCode, data))
			return
		}

		for data, err := range readSSE(resp.Body) {
			if err != nil {
				yield(StreamChunk{}, fmt.Errorf("chat stream error: %w", err))
				return
			}
			data = bytes.TrimSpace(data)
			if len(data) == 0 {
				continue
			}
			if bytes.Equal(data, []byte("[DONE]")) {
				return
			}

			var chunk StreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				yield(StreamChunk{}, fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// readSSE yields the data payload of each server-sent event.
// Multi-line data fields are joined with newlines; comments and other
// fields are skipped.
func readSSE(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64<<10), maxSSELine)

		var data []byte
		pending := false
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				if pending {
					if !yield(data, nil) {
						return
					}
					data, pending = nil, false
				}
				continue
			}
			if line[0] == ':' {
				continue
			}

			field, value, _ := bytes.Cut(line, []byte(":"))
			if !bytes.Equal(field, []byte("data")) {
				continue
			}
			value = bytes.TrimPrefix(value, []byte(" "))
			if pending {
				data = append(data, '\n')
			}
			data = append(data, value...)
			pending = true
		}
		if err := sc.Err(); err != nil {
			yield(nil, err)
			return
		}
		if pending {
			yield(data, nil)
		}
	}
}
