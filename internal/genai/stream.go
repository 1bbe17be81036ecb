package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loftlabs/loft/internal/chat"
	"github.com/loftlabs/loft/internal/errors"
)

// StreamGenerate implements Completer. It opens a server-sent-events stream
// and invokes cb once per text chunk, in arrival order. The callback runs on
// the caller's goroutine, so chunk handling is strictly sequential.
func (c *Client) StreamGenerate(ctx context.Context, instruction string, history []chat.Turn, cb StreamCallback) error {
	req := generateRequest{Contents: toWireContents(history)}
	if instruction != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: instruction}}}
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	body, err := c.post(ctx, url, &req)
	if err != nil {
		return err
	}
	defer body.Close()

	return readStream(ctx, body, cb)
}

// dataPrefix marks event payload lines in the SSE framing.
var dataPrefix = []byte("data:")

// readStream scans SSE lines, decoding each data payload and forwarding its
// text to cb. Unparseable lines are skipped rather than failing the whole
// stream.
func readStream(ctx context.Context, r io.Reader, cb StreamCallback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}

		var resp generateResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if resp.Error != nil {
			return errors.NewUpstream(fmt.Errorf("completion stream error: %s", resp.Error.Message))
		}
		if text := resp.text(); text != "" {
			cb(text)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.NewUpstream(err)
	}
	return nil
}
