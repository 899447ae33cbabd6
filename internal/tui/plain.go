package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// line-oriented mode for pipes and dumb terminals. every non-empty input
// line is sent as one message and the reply is written as it streams.
func RunPlain(ctx context.Context, client *ChatClient, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var writeErr error

		err := client.Send(ctx, line, func(chunk string) {
			if writeErr == nil {
				_, writeErr = io.WriteString(out, chunk)
			}
		})
		if writeErr != nil {
			return writeErr
		}

		var replyErr *ReplyError
		switch {
		case errors.As(err, &replyErr):
			fmt.Fprintf(out, "\n[error] %s\n", replyErr.Message) //nolint:errcheck
		case err != nil:
			return err
		default:
			fmt.Fprintln(out) //nolint:errcheck
		}
	}

	return scanner.Err()
}
