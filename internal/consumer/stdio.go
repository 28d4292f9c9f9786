package consumer

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

const maxLine = 1 << 20

// StdioConn speaks JSON lines: one frame per line in each direction.
type StdioConn struct {
	r  io.Reader
	sc *bufio.Scanner

	wmu sync.Mutex
	w   io.Writer

	closeOnce sync.Once
}

func NewStdioConn(r io.Reader, w io.Writer) *StdioConn {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &StdioConn{r: r, sc: sc, w: w}
}

// ReadFrame returns io.EOF when the input ends. Blank lines are skipped.
func (c *StdioConn) ReadFrame() (Frame, error) {
	for c.sc.Scan() {
		line := c.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return decodeFrame(line)
	}
	if err := c.sc.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

func (c *StdioConn) WriteFrame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(b)
	return err
}

// Close closes the underlying reader and writer when they are closers.
func (c *StdioConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if rc, ok := c.r.(io.Closer); ok {
			err = rc.Close()
		}
		if wc, ok := c.w.(io.Closer); ok {
			if werr := wc.Close(); err == nil {
				err = werr
			}
		}
	})
	return err
}
