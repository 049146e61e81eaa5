package adapter

import (
	"bufio"
	"io"
	"strings"
)

// ReadEventStream walks a text/event-stream body line by line, invoking fn
// with each data payload. A "[DONE]" sentinel or io.EOF ends the stream.
// fn must not block: progress delivery happens off the parse loop.
func ReadEventStream(body io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
