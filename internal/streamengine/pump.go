// Package streamengine implements the Stream Engine: the
// producer/consumer pump that decouples reading upstream bytes from
// parsing and rewriting them for the client, provider-key selection, hop-
// by-hop header hygiene, and request-cancellation bookkeeping.
package streamengine

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/onehub/llmgate/internal/logger"
	"github.com/onehub/llmgate/internal/sse"
	"github.com/onehub/llmgate/internal/streamxform"
)

// producerChannelCapacity is the bounded channel capacity between the
// upstream reader and the client-facing consumer.
const producerChannelCapacity = 10

// PumpResult reports the timestamps and byte totals the caller needs for
// its RequestLog entry.
type PumpResult struct {
	FirstChunkUnix int64
	UpstreamBytes  int
	ClientBytes    int
	Err            error
}

// Pump reads SSE bytes from upstream, decouples the read from
// transformation via a bounded channel, and writes the StreamTransformer's
// rendered output to w. It returns once upstream is exhausted, ctx is
// cancelled (client disconnect), or a write to w fails.
func Pump(ctx context.Context, upstream io.Reader, w io.Writer, flush func(), tf *streamxform.Transformer, target streamxform.Dialect) PumpResult {
	chunks := make(chan []byte, producerChannelCapacity)
	readErrCh := make(chan error, 1)

	go produce(ctx, upstream, chunks, readErrCh)

	// An Ollama upstream streams newline-delimited JSON objects, not SSE;
	// every other source dialect is parsed as an event stream.
	if tf.Source == streamxform.Ollama {
		return consumeLines(chunks, readErrCh, w, flush, tf, target)
	}

	parser := sse.New()
	var result PumpResult

	for raw := range chunks {
		result.UpstreamBytes += len(raw)
		for _, ev := range parser.Process(raw) {
			outEvents, finished, err := tf.TransformSSE(ev)
			if err != nil {
				result.Err = errors.Wrap(err, "transform stream event")
				return result
			}
			if done := writeEvents(outEvents, w, flush, target, &result); done {
				return result
			}
			if finished {
				drainRemaining(chunks)
				result.Err = <-readErrCh
				return result
			}
		}
	}

	result.Err = <-readErrCh
	return result
}

// consumeLines is the NDJSON consumer: it splits the chunk stream on
// newlines and feeds each complete line through the transformer.
func consumeLines(chunks <-chan []byte, readErrCh <-chan error, w io.Writer, flush func(), tf *streamxform.Transformer, target streamxform.Dialect) PumpResult {
	var result PumpResult
	var tail []byte

	for raw := range chunks {
		result.UpstreamBytes += len(raw)
		buf := append(tail, raw...)
		tail = nil
		for {
			idx := bytes.IndexByte(buf, '\n')
			if idx == -1 {
				break
			}
			line := bytes.TrimSuffix(buf[:idx], []byte{'\r'})
			buf = buf[idx+1:]
			if len(line) == 0 {
				continue
			}
			outEvents, finished, err := tf.TransformLine(line)
			if err != nil {
				result.Err = errors.Wrap(err, "transform stream line")
				return result
			}
			if done := writeEvents(outEvents, w, flush, target, &result); done {
				return result
			}
			if finished {
				drainRemaining(chunks)
				result.Err = <-readErrCh
				return result
			}
		}
		tail = buf
	}

	result.Err = <-readErrCh
	return result
}

// writeEvents renders and forwards transformed events, updating result's
// byte counts and first-chunk timestamp. It reports true when a client
// write failed and the pump must stop.
func writeEvents(events []streamxform.OutEvent, w io.Writer, flush func(), target streamxform.Dialect, result *PumpResult) bool {
	for _, oe := range events {
		b := oe.Render(target)
		n, werr := w.Write(b)
		result.ClientBytes += n
		if werr != nil {
			result.Err = errors.Wrap(werr, "write to client")
			return true
		}
		if result.FirstChunkUnix == 0 {
			result.FirstChunkUnix = time.Now().Unix()
		}
	}
	if len(events) > 0 && flush != nil {
		flush()
	}
	return false
}

func produce(ctx context.Context, upstream io.Reader, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	r := bufio.NewReaderSize(upstream, 32*1024)
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				errCh <- nil
			} else {
				errCh <- errors.Wrap(err, "read upstream body")
			}
			return
		}
	}
}

// drainRemaining discards any chunks still in flight once the stream
// reached an explicit terminal event, so the producer goroutine does not
// leak blocked on a full channel.
func drainRemaining(chunks <-chan []byte) {
	dropped := 0
	for c := range chunks {
		dropped += len(c)
	}
	if dropped > 0 {
		logger.L.Debug("dropped trailing upstream bytes after stream terminal event", zap.Int("bytes", dropped))
	}
}
