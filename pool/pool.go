package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"finvault/e2ee/cipher"
	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/logger"
	"finvault/e2ee/schema"
	"finvault/e2ee/transform"
	"finvault/e2ee/utils"

	"golang.org/x/sync/errgroup"
)

// Pool runs encrypt and decrypt work over a fixed set of worker contexts.
// Each context owns its own session; key material only reaches a context
// through InitKeys or InitFromStorage.
type Pool struct {
	cipher cipher.Cipher
	store  core.KeyStore
	logger logger.Logger
	size   int

	workers []*worker
	cursor  atomic.Uint64
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	// lifecycle calls are serialized; the key store is single-writer.
	mu          sync.Mutex
	transformer atomic.Pointer[transform.Transformer]
}

type Option func(*Pool)

// WithSize overrides the default of NumCPU-2 contexts, minimum 2.
func WithSize(n int) Option {
	return func(p *Pool) {
		p.size = max(n, 1)
	}
}

func WithStore(store core.KeyStore) Option {
	return func(p *Pool) {
		p.store = store
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

func DefaultSize() int {
	return max(runtime.NumCPU()-consts.PoolHeadroom, consts.MinPoolSize)
}

func New(c cipher.Cipher, opts ...Option) *Pool {
	p := &Pool{
		cipher: c,
		store:  core.NoStore{},
		logger: logger.Nop(),
		size:   DefaultSize(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = core.NoStore{}
	}

	p.workers = make([]*worker, p.size)
	for i := range p.workers {
		w := &worker{
			id:      i,
			reqs:    make(chan *request),
			session: core.NewSession(c, p.store),
		}
		p.workers[i] = w
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(p.done)
		}()
	}

	p.logger.Log(logger.DebugLevel, "worker pool started with %d contexts", p.size)
	emitPoolStarted(context.Background(), p.size)
	return p
}

func (p *Pool) Size() int {
	return p.size
}

// Ready reports whether a schema has been loaded into every context.
func (p *Pool) Ready() bool {
	return p.transformer.Load() != nil
}

// Close stops every context and drops their keys. The key store is left
// as is.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.transformer.Store(nil)
		emitPoolClosed(context.Background(), p.size)
	})
}

func (p *Pool) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// >>>

// send hands one request to w and waits for its reply.
func (p *Pool) send(ctx context.Context, w *worker, o op, body []byte) ([]byte, error) {
	req := &request{op: o, body: body, reply: make(chan response, 1)}

	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errs.ErrPoolClosed
	}

	select {
	case res := <-req.reply:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errs.ErrPoolClosed
	}
}

// broadcast sends the same request to every context in parallel and waits
// for all of them.
func (p *Pool) broadcast(ctx context.Context, o op, body []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			if _, err := p.send(gctx, w, o, body); err != nil {
				return fmt.Errorf("context %d: %s: %w", w.id, o, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// broadcastSecret is broadcast for a body that carries a password. The body
// is wiped once every context has replied.
func (p *Pool) broadcastSecret(ctx context.Context, o op, body []byte) error {
	defer utils.Clear(body)
	return p.broadcast(ctx, o, body)
}

// next advances the round-robin cursor.
func (p *Pool) next() *worker {
	i := p.cursor.Add(1) - 1
	return p.workers[i%uint64(len(p.workers))]
}

// >>>

// InitSchema loads s into every context. Until a broadcast succeeds the
// pool refuses to encrypt or decrypt.
func (p *Pool) InitSchema(ctx context.Context, s *schema.Schema) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { emitSchemaBroadcast(ctx, p.size, err) }()

	if p.closed() {
		return errs.ErrPoolClosed
	}

	p.transformer.Store(nil)
	var body []byte
	if body, err = encode(s.Raw()); err != nil {
		return err
	}
	if err = p.broadcast(ctx, opSchema, body); err != nil {
		return err
	}

	p.transformer.Store(transform.New(s))
	return nil
}

// InitKeys unlocks every context. With an available key store the password
// is stretched once and the contexts read the key back from the store;
// otherwise every context derives it on its own, in parallel.
func (p *Pool) InitKeys(ctx context.Context, keys *core.WrappedKeys, pwd []byte, userID string) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed() {
		return errs.ErrPoolClosed
	}

	start := time.Now()
	if p.store.Available() {
		defer func() { emitKeysBroadcast(ctx, "fast", time.Since(start), err) }()

		s := core.NewSession(p.cipher, p.store)
		if err = s.Init(keys, pwd, userID); err != nil {
			return err
		}
		s.DelSession()

		var body []byte
		if body, err = encode(userID); err != nil {
			return err
		}
		return p.broadcast(ctx, opInitFromStorage, body)
	}

	defer func() { emitKeysBroadcast(ctx, "slow", time.Since(start), err) }()
	if keys == nil {
		return fmt.Errorf("%w: wrapped keys cannot be nil", errs.ErrInvalidPassword)
	}
	var body []byte
	body, err = encode(initMsg{
		EDEK:     keys.EDEK,
		KEKSalt:  keys.KEKSalt,
		Password: pwd,
		UserID:   userID,
	})
	if err != nil {
		return err
	}
	return p.broadcastSecret(ctx, opInit, body)
}

// InitFromStorage loads the cached key of userID into every context.
func (p *Pool) InitFromStorage(ctx context.Context, userID string) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { emitKeysBroadcast(ctx, "storage", 0, err) }()

	if p.closed() {
		return errs.ErrPoolClosed
	}
	if !p.store.Available() {
		return errs.ErrStorageUnavailable
	}

	var body []byte
	if body, err = encode(userID); err != nil {
		return err
	}
	return p.broadcast(ctx, opInitFromStorage, body)
}

// Logout clears the key store and drops the key of every context.
func (p *Pool) Logout(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() { emitLogout(ctx, err) }()

	clearErr := core.ClearStorage(p.store)
	if p.closed() {
		return clearErr
	}
	if err = p.broadcast(ctx, opLogout, nil); err != nil {
		return err
	}
	return clearErr
}
