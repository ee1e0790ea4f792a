package main

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"golang.org/x/term"
)

// A pager like more(1). If r is a terminal it must be in raw mode. If r
// isn't a terminal, everything is written straight through to w.
type pager struct {
	fd         int
	w          io.Writer
	r          *bufio.Reader
	buf        bytes.Buffer
	shouldPage bool
	line       int
	stopped    bool
}

var _ io.Writer = &pager{}

type fder interface {
	Fd() uintptr
}

func isTerminal(v any) bool {
	f, ok := v.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newPager(r io.Reader, w io.Writer) *pager {
	fd := -1
	if f, ok := w.(fder); ok {
		fd = int(f.Fd())
	}

	return &pager{
		fd:         fd,
		w:          w,
		r:          bufio.NewReader(r),
		shouldPage: isTerminal(r) && isTerminal(w),
	}
}

func (p *pager) Write(b []byte) (n int, err error) {
	if !p.shouldPage {
		return p.w.Write(b)
	}

	if p.stopped {
		return 0, io.EOF
	}

	_, height, err := term.GetSize(p.fd)
	if err != nil {
		return p.w.Write(b)
	}

	p.buf.Write(b)

	written := 0
	for p.buf.Len() > 0 {
		// height-1 leaves room for "--More--".
		if p.line >= height-1 {
			if err := p.paginate(); err != nil {
				return written, err
			}

			// 'G' turns paging off. Flush what's left.
			if !p.shouldPage {
				n, err := p.w.Write(p.buf.Bytes())
				p.buf.Reset()
				return written + n, err
			}
		}

		line, err := p.buf.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return written, err
		}

		n, err := p.w.Write(line)
		written += n
		if err != nil {
			return written, err
		}
		p.line++
	}

	return len(b), nil
}

func (p *pager) paginate() error {
	more := []byte("--More--")
	clear := []byte("\r" + strings.Repeat(" ", len(more)) + "\r")

	for {
		if _, err := p.w.Write(more); err != nil {
			return err
		}

		b, err := p.r.ReadByte()
		if err != nil {
			return err
		}

		if _, err := p.w.Write(clear); err != nil {
			return err
		}

		switch b {
		case 'q':
			p.stopped = true
			return io.EOF
		case ' ':
			p.line = 0
			return nil
		case '\r', 'j':
			p.line--
			return nil
		case 'G':
			p.shouldPage = false
			return nil
		case '\x1b': // escape sequence, read next two bytes
			var seq [2]byte
			if _, err := io.ReadFull(p.r, seq[:]); err != nil {
				return err
			}
			if seq == [2]byte{'[', 'B'} { // down arrow
				p.line--
				return nil
			}
		}
	}
}
