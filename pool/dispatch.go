package pool

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/transform"

	"golang.org/x/sync/errgroup"
)

// Encrypt encrypts every declared field of payload. format is
// "<shape>-<model>"; array and map payloads are split across contexts and
// put back together in their original order.
func (p *Pool) Encrypt(ctx context.Context, payload any, format string) (any, error) {
	return p.dispatch(ctx, opEncrypt, payload, format)
}

// Decrypt is the inverse of Encrypt. Integer and boolean fields come back
// typed and "null" comes back as nil.
func (p *Pool) Decrypt(ctx context.Context, payload any, format string) (any, error) {
	return p.dispatch(ctx, opDecrypt, payload, format)
}

func (p *Pool) dispatch(ctx context.Context, o op, payload any, format string) (out any, err error) {
	start := time.Now()
	chunks := 0
	defer func() { emitDispatchComplete(ctx, o.String(), format, chunks, time.Since(start), err) }()

	if p.closed() {
		return nil, errs.ErrPoolClosed
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	t := p.transformer.Load()
	if t == nil {
		return nil, errs.ErrPoolNotReady
	}

	f, err := t.Format(format)
	if err != nil {
		return nil, err
	}
	if err = transform.CheckShape(payload, f.Shape); err != nil {
		return nil, err
	}

	switch f.Shape {
	case transform.Array:
		parts := chunkArray(payload.([]any), p.size)
		chunks = len(parts)
		return p.dispatchArray(ctx, o, parts, f)
	case transform.Map:
		parts := chunkMap(payload.(map[string]any), p.size)
		chunks = len(parts)
		return p.dispatchMap(ctx, o, parts, f)
	default:
		chunks = 1
		return p.run(ctx, p.next(), o, payload, f)
	}
}

// run sends one unit of work to w.
func (p *Pool) run(ctx context.Context, w *worker, o op, payload any, f transform.Format) (any, error) {
	body, err := encode(jobMsg{Format: f.String(), Payload: payload})
	if err != nil {
		return nil, err
	}
	res, err := p.send(ctx, w, o, body)
	if err != nil {
		return nil, err
	}

	var out any
	if err = decode(res, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pool) dispatchArray(ctx context.Context, o op, parts [][]any, f transform.Format) (any, error) {
	results := make([][]any, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		w := p.next()
		g.Go(func() error {
			res, err := p.run(gctx, w, o, part, f)
			if err != nil {
				return err
			}
			arr, ok := res.([]any)
			if !ok || len(arr) != len(part) {
				return fmt.Errorf("context %d returned a malformed chunk", w.id)
			}
			results[i] = arr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]any, 0)
	for _, arr := range results {
		out = append(out, arr...)
	}
	return out, nil
}

func (p *Pool) dispatchMap(ctx context.Context, o op, parts []map[string]any, f transform.Format) (any, error) {
	results := make([]map[string]any, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		w := p.next()
		g.Go(func() error {
			res, err := p.run(gctx, w, o, part, f)
			if err != nil {
				return err
			}
			m, ok := res.(map[string]any)
			if !ok || len(m) != len(part) {
				return fmt.Errorf("context %d returned a malformed chunk", w.id)
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]any)
	for _, m := range results {
		maps.Copy(out, m)
	}
	return out, nil
}

// >>>

// arrayChunkSize is round(n/size), half up, at least 1.
func arrayChunkSize(n, size int) int {
	return max(1, int(math.Floor(float64(n)/float64(size)+0.5)))
}

// chunkArray splits arr into contiguous chunks, in order.
func chunkArray(arr []any, size int) [][]any {
	step := arrayChunkSize(len(arr), size)
	parts := make([][]any, 0, len(arr)/step+1)
	for start := 0; start < len(arr); start += step {
		parts = append(parts, arr[start:min(start+step, len(arr))])
	}
	return parts
}

// chunkMap splits m into sub-maps of ceil(n/size) keys, taken in key order.
func chunkMap(m map[string]any, size int) []map[string]any {
	keys := slices.Sorted(maps.Keys(m))
	step := max(1, (len(keys)+size-1)/size)

	parts := make([]map[string]any, 0, size)
	for group := range slices.Chunk(keys, step) {
		part := make(map[string]any, len(group))
		for _, k := range group {
			part[k] = m[k]
		}
		parts = append(parts, part)
	}
	return parts
}
