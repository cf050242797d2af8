package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/common/helper"
	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/signature"
)

// DefaultMaxPrefetchLines is spec.md §4.6's default max_prefetch_lines.
const DefaultMaxPrefetchLines = 5

// Processor turns a raw upstream line stream into a safe SSE stream for
// the client while maintaining a Context and detecting embedded errors
// before any byte reaches the client.
type Processor struct {
	Registry         *convert.Registry
	MaxPrefetchLines int
}

// NewProcessor builds a Processor with spec.md §4.6's default prefetch window.
func NewProcessor(registry *convert.Registry) *Processor {
	return &Processor{Registry: registry, MaxPrefetchLines: DefaultMaxPrefetchLines}
}

// flusher lets Process push partial writes immediately, matching
// net/http.ResponseWriter's optional http.Flusher interface.
type flusher interface {
	Flush()
}

// Process reads upstream line by line, forwards it to w, and maintains sc.
// isDisconnected is polled between chunks; when it reports true the
// context is marked client_disconnected (status 499) and streaming stops
// without error (the caller already knows the client is gone).
func (p *Processor) Process(ctx context.Context, upstream io.ReadCloser, sc *Context, providerFamily signature.ApiFamily, w io.Writer, isDisconnected func() bool) (err error) {
	defer func() {
		if closeErr := upstream.Close(); closeErr != nil {
			// Cleanup never overrides the primary error (spec.md §4.6:
			// "exceptions from cleanup swallowed").
			_ = closeErr
		}
		if r := recover(); r != nil {
			sc.StatusCode = http.StatusInternalServerError
		}
	}()

	maxPrefetch := p.MaxPrefetchLines
	if maxPrefetch <= 0 {
		maxPrefetch = DefaultMaxPrefetchLines
	}

	scanner := bufio.NewScanner(upstream)
	helper.ConfigureScannerBuffer(scanner)

	var prefetched []string
	prefetchDone := false
	for len(prefetched) < maxPrefetch && scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "[DONE]" || line == "data: [DONE]" {
			prefetched = append(prefetched, line)
			prefetchDone = true
			break
		}
		prefetched = append(prefetched, line)
	}

	if !prefetchDone {
		if gerr := p.screenPrefetch(prefetched, providerFamily); gerr != nil {
			sc.StatusCode = gatewayerr.HTTPStatus(gerr.Kind)
			sc.ErrorMessage = common.SanitizeErrorMessage(gerr.Error())
			return gerr
		}
	}

	fl, _ := w.(flusher)

	for _, line := range prefetched {
		if isDisconnected != nil && isDisconnected() {
			sc.StatusCode = 499
			sc.ErrorMessage = common.SanitizeErrorMessage("client_disconnected")
			return nil
		}
		if err := p.emitLine(line, sc, providerFamily, w, fl); err != nil {
			sc.StatusCode = http.StatusInternalServerError
			return err
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			sc.StatusCode = 499
			sc.ErrorMessage = common.SanitizeErrorMessage("client_disconnected")
			return nil
		default:
		}

		if isDisconnected != nil && isDisconnected() {
			sc.StatusCode = 499
			sc.ErrorMessage = common.SanitizeErrorMessage("client_disconnected")
			return nil
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if err := p.emitLine(line, sc, providerFamily, w, fl); err != nil {
			sc.StatusCode = http.StatusInternalServerError
			return err
		}
	}

	return scanner.Err()
}

// screenPrefetch implements spec.md §4.6's prefetch-window embedded-error
// detection, applied before any byte reaches the client.
func (p *Processor) screenPrefetch(lines []string, providerFamily signature.ApiFamily) *gatewayerr.Error {
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	lower := strings.ToLower(joined)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return gatewayerr.ProviderNotAvailable("base_url misconfigured")
	}

	if !strings.HasPrefix(joined, "{") && !strings.HasPrefix(joined, "[") {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(joined), &obj); err != nil {
		return nil
	}

	if p.Registry == nil {
		return nil
	}
	code, message, status, isErr := p.Registry.IsErrorResponse(obj, providerFamily)
	if !isErr {
		return nil
	}
	return gatewayerr.EmbeddedError(string(providerFamily), code, message, status)
}

// emitLine implements spec.md §4.6's per-line handling: normalize CRLF
// (already stripped by the caller), forward verbatim, and on a completed
// event update sc via handleSSEEvent.
func (p *Processor) emitLine(line string, sc *Context, providerFamily signature.ApiFamily, w io.Writer, fl flusher) error {
	if line == "" {
		// Blank line flushes the current event; nothing buffered here since
		// each data line is handled immediately below.
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if fl != nil {
			fl.Flush()
		}
		return nil
	}

	sc.ChunkCount++
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return err
	}
	if fl != nil {
		fl.Flush()
	}

	dataStr, ok := cutDataPrefix(line)
	if !ok {
		return nil
	}
	p.handleSSEEvent(dataStr, sc, providerFamily)
	return nil
}

func cutDataPrefix(line string) (string, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
}

// handleSSEEvent parses a data line (ignoring "[DONE]" but recording
// has_completion), pulls usage and text via the registry, and marks
// has_completion on the family's terminal event names.
func (p *Processor) handleSSEEvent(dataStr string, sc *Context, providerFamily signature.ApiFamily) {
	sc.DataCount++
	if dataStr == "[DONE]" {
		sc.HasCompletion = true
		return
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(dataStr), &obj); err != nil {
		return
	}
	sc.ParsedChunks = append(sc.ParsedChunks, obj)

	if p.Registry == nil {
		return
	}

	raw, _ := json.Marshal(obj)
	if usage, ok := p.Registry.ExtractUsage(raw, providerFamily); ok {
		sc.InputTokens = usage.InputTokens
		sc.OutputTokens = usage.OutputTokens
		sc.CachedTokens = usage.CachedTokens
	}
	if text, ok := p.Registry.ExtractText(raw, providerFamily); ok {
		sc.CollectedText += text
	}

	if eventType, _ := obj["type"].(string); isTerminalEventType(eventType) {
		sc.HasCompletion = true
	}
}

// isTerminalEventType matches spec.md §4.6's terminal event set:
// "event ∈ {response.completed, message_stop}".
func isTerminalEventType(eventType string) bool {
	return eventType == "response.completed" || eventType == "message_stop"
}
