package pool

import (
	"bytes"
	"context"
	"fmt"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/schema"
	"finvault/e2ee/transform"
	"finvault/e2ee/utils"

	"github.com/vmihailenco/msgpack/v5"
)

type op int

const (
	opSchema op = iota
	opInit
	opInitFromStorage
	opLogout
	opEncrypt
	opDecrypt
)

var opNames = [...]string{"schema", "init", "initFromStorage", "logout", "encrypt", "decrypt"}

func (o op) String() string {
	return opNames[o]
}

// Messages crossing into a context. Everything a context receives is
// msgpack encoded, so no payload memory is shared with the caller.
type (
	initMsg struct {
		EDEK     string `msgpack:"edek"`
		KEKSalt  string `msgpack:"kekSalt"`
		Password []byte `msgpack:"password"`
		UserID   string `msgpack:"userId"`
	}

	jobMsg struct {
		Format  string `msgpack:"format"`
		Payload any    `msgpack:"payload"`
	}
)

type request struct {
	op    op
	body  []byte
	reply chan response
}

type response struct {
	body []byte
	err  error
}

func encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// decode turns integers into int64 and uint64, whatever width they were
// packed with.
func decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// >>>

// worker is one execution context. Its session and transformer are only
// touched by its own goroutine.
type worker struct {
	id          int
	reqs        chan *request
	session     *core.Session
	transformer *transform.Transformer
}

func (w *worker) run(done <-chan struct{}) {
	defer w.session.DelSession()
	for {
		select {
		case <-done:
			return
		case req := <-w.reqs:
			body, err := w.handle(req)
			req.reply <- response{body: body, err: err}
		}
	}
}

func (w *worker) handle(req *request) ([]byte, error) {
	switch req.op {
	case opSchema:
		var raw any
		if err := decode(req.body, &raw); err != nil {
			return nil, err
		}
		s, err := schema.Parse(raw)
		if err != nil {
			w.transformer = nil
			return nil, err
		}
		w.transformer = transform.New(s)
		return nil, nil

	case opInit:
		msg := new(initMsg)
		if err := decode(req.body, msg); err != nil {
			return nil, err
		}
		defer utils.Clear(msg.Password)
		keys := &core.WrappedKeys{EDEK: msg.EDEK, KEKSalt: msg.KEKSalt}
		return nil, w.session.Init(keys, msg.Password, msg.UserID)

	case opInitFromStorage:
		var userID string
		if err := decode(req.body, &userID); err != nil {
			return nil, err
		}
		return nil, w.session.InitFromStorage(userID)

	case opLogout:
		w.session.DelSession()
		return nil, nil

	case opEncrypt, opDecrypt:
		return w.transform(req)
	}
	return nil, fmt.Errorf("unknown op %d", req.op)
}

func (w *worker) transform(req *request) ([]byte, error) {
	if w.transformer == nil {
		return nil, errs.ErrPoolNotReady
	}
	job := new(jobMsg)
	if err := decode(req.body, job); err != nil {
		return nil, err
	}

	ctx := context.Background()
	var (
		out any
		err error
	)
	if req.op == opEncrypt {
		out, err = w.transformer.Apply(ctx, job.Payload, job.Format, func(_ context.Context, v, _ string) (string, error) {
			return w.session.Encrypt(v)
		})
	} else {
		out, err = w.transformer.Apply(ctx, job.Payload, job.Format, func(_ context.Context, v, _ string) (string, error) {
			return w.session.Decrypt(v)
		})
		if err == nil {
			out, err = w.transformer.ConvertStringsToTypes(out, job.Format)
		}
	}
	if err != nil {
		return nil, err
	}

	return encode(out)
}
