package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// MaxRequestBytes caps one request line.
const MaxRequestBytes = 10 << 20

var errLineTooLong = errors.New("request line too long")

// Serve reads newline-delimited requests from r and writes one JSON response line per
// request to w. Up to server.workers requests run concurrently, so responses may be
// written out of order; clients match them by request_id. Serve returns when r is
// exhausted and every in-flight request has been answered, or when ctx is canceled.
func (a *App) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	workers := a.cfg.Server.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	out := &responseWriter{enc: json.NewEncoder(w)}
	br := bufio.NewReaderSize(r, 64*1024)
	served := 0

	a.logger.Info("serving requests", "workers", workers)
	for {
		if err := gctx.Err(); err != nil {
			break
		}
		line, err := readLine(br, MaxRequestBytes)
		if errors.Is(err, errLineTooLong) {
			reqID := uuid.NewString()
			a.logger.Warn("request rejected", "request_id", reqID, "reason", "line over "+humanize.IBytes(MaxRequestBytes))
			if werr := out.write(NewFailure(reqID, &pack.Error{
				Kind:    pack.KindValidation,
				Code:    pack.CodeOversize,
				Message: fmt.Sprintf("request line exceeds %s", humanize.IBytes(MaxRequestBytes)),
				Details: pack.OversizeDetails{MaxBytes: MaxRequestBytes},
			})); werr != nil {
				return werr
			}
			continue
		}
		if len(bytes.TrimSpace(line)) > 0 {
			served++
			g.Go(func() error {
				return out.write(a.handleLine(gctx, line))
			})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			g.Wait()
			return fmt.Errorf("reading requests: %w", err)
		}
	}

	err := g.Wait()
	a.logger.Info("request stream closed", "served", served)
	return err
}

// handleLine decodes one request line and dispatches it.
func (a *App) handleLine(ctx context.Context, line []byte) any {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return NewFailure(uuid.NewString(), pack.Validation("request must be a JSON object: %v", err))
	}
	return a.Dispatch(ctx, req)
}

// readLine returns the next line without its terminator. Lines longer than limit are
// consumed and reported as errLineTooLong. The last line may end at EOF, in which case
// it is returned together with io.EOF.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case tooLong && (err == nil || err == io.EOF):
			return nil, errLineTooLong
		case err != nil:
			return line, err
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}
}

// responseWriter serializes response lines from concurrent workers.
type responseWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (rw *responseWriter) write(v any) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if err := rw.enc.Encode(v); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

// ServeMetrics exposes the Prometheus registry on addr under /metrics until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.logger.Info("metrics listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
