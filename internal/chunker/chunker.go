package chunker

import (
	"context"
	"time"
	"unicode/utf8"
)

// returns the default chunking options
func DefaultOptions() Options {
	return Options{
		MaxSize:    DefaultMaxSize,
		Delay:      DefaultDelay,
		QueueDepth: DefaultQueueDepth,
	}
}

// fills in defaults for unset or out-of-range values
func (o Options) normalized() Options {
	if o.MaxSize < 1 {
		o.MaxSize = DefaultMaxSize
	}

	if o.Delay < 0 {
		o.Delay = 0
	}

	if o.QueueDepth < 1 {
		o.QueueDepth = DefaultQueueDepth
	}

	return o
}

// starts accumulating fragments from in. the returned stream hands off
// chunks of exactly MaxSize runes (the last one may be shorter), at least
// Delay apart, on an unbuffered channel. the first chunk goes out as soon
// as it is complete.
//
// when in closes, the remaining text is flushed and the stream closes with
// a nil Err. when a fragment carries an error, everything buffered is
// still flushed before the stream closes with that error. when ctx ends,
// the stream closes right away with ctx's error.
func Start(ctx context.Context, in <-chan Fragment, opts Options) *Stream {
	s := &Stream{chunks: make(chan Chunk)}

	go s.run(ctx, in, opts.normalized())

	return s
}

// returns the chunk channel. it is closed when the stream ends.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// returns why the stream ended. only valid once Chunks is closed.
func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) run(ctx context.Context, in <-chan Fragment, opts Options) {
	defer close(s.chunks)

	var (
		pending     string
		ready       []string
		seq         int
		lastHandoff time.Time
		inputDone   bool
		inputErr    error
	)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		// nothing more is coming, so held back bytes are cut as they are
		for inputDone && pending != "" {
			head, tail, full := cut(pending, opts.MaxSize)
			if !full {
				head, tail = tail, ""
			}

			ready = append(ready, head)
			pending = tail
		}

		if inputDone && len(ready) == 0 {
			s.err = inputErr
			return
		}

		// stop reading once enough full chunks are waiting
		var inCh <-chan Fragment
		if !inputDone && len(ready) < opts.QueueDepth {
			inCh = in
		}

		var (
			outCh  chan<- Chunk
			next   Chunk
			waitCh <-chan time.Time
		)

		if len(ready) > 0 {
			wait := opts.Delay - time.Since(lastHandoff)

			if seq == 0 || wait <= 0 {
				outCh = s.chunks
				next = Chunk{Seq: seq + 1, Text: ready[0]}
			} else {
				timer.Reset(wait)
				waitCh = timer.C
			}
		}

		select {
		case <-ctx.Done():
			s.err = ctx.Err()
			return

		case f, ok := <-inCh:
			if !ok {
				inputDone = true
				continue
			}

			pending += f.Text

			// a character split across fragments waits for its remaining bytes
			for {
				n := completePrefix(pending)

				head, tail, full := cut(pending[:n], opts.MaxSize)
				if !full {
					break
				}

				ready = append(ready, head)
				pending = tail + pending[n:]
			}

			if f.Err != nil {
				inputDone = true
				inputErr = f.Err
			}

		case outCh <- next:
			seq++
			ready = ready[1:]
			lastHandoff = time.Now()

		case <-waitCh:
		}
	}
}

// returns the length of s without a trailing incomplete UTF-8 sequence
func completePrefix(s string) int {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}

		if utf8.FullRuneInString(s[i:]) {
			return len(s)
		}

		return i
	}

	return len(s)
}

// splits s after its first n runes. full is false when s has fewer than n
// runes. invalid UTF-8 bytes count as one rune each and are kept as is.
func cut(s string, n int) (head, tail string, full bool) {
	count := 0

	for i := range s {
		if count == n {
			return s[:i], s[i:], true
		}

		count++
	}

	if count == n {
		return s, "", true
	}

	return "", s, false
}
