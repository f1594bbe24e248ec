package worker

import (
	"bytes"
	"sync"
)

// lineCapture accumulates everything written to it and hands each complete
// line to emit as soon as it arrives.
type lineCapture struct {
	mu      sync.Mutex
	all     bytes.Buffer
	partial []byte
	emit    func(line string)
}

func newLineCapture(emit func(string)) *lineCapture {
	return &lineCapture{emit: emit}
}

func (c *lineCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.all.Write(p)
	c.partial = append(c.partial, p...)

	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(c.partial[:i], "\r"))
		c.partial = c.partial[i+1:]
		if c.emit != nil {
			c.emit(line)
		}
	}

	return len(p), nil
}

// flush emits a trailing line that was not newline-terminated.
func (c *lineCapture) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.partial) > 0 && c.emit != nil {
		c.emit(string(c.partial))
	}
	c.partial = nil
}

func (c *lineCapture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all.String()
}
