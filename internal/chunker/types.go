package chunker

import "time"

const (
	DefaultMaxSize    = 24
	DefaultDelay      = 300 * time.Millisecond
	DefaultQueueDepth = 2
)

// one piece of upstream output. a fragment with Err set ends the input.
type Fragment struct {
	Text string
	Err  error
}

// one paced unit of output. Seq starts at 1 for every stream.
type Chunk struct {
	Seq  int
	Text string
}

type Options struct {
	// maximum chunk length in characters (runes)
	MaxSize int

	// minimum gap between two hand-offs
	Delay time.Duration

	// full chunks buffered before input reading pauses
	QueueDepth int
}

// the output side of a running accumulator
type Stream struct {
	chunks chan Chunk
	err    error
}
