package middleware

import (
	"context"
	"fmt"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/logger"
	"finvault/e2ee/utils"
)

type MessageType string

// Session lifecycle messages. Every other type is a data message.
const (
	Login                  MessageType = "session/login"
	LoginSuccess           MessageType = "session/loginSuccess"
	LoginFailure           MessageType = "session/loginFailure"
	InitFromStorage        MessageType = "session/initFromStorage"
	InitFromStorageSuccess MessageType = "session/initFromStorageSuccess"
	InitFromStorageFailure MessageType = "session/initFromStorageFailure"
	Logout                 MessageType = "session/logout"
)

// Meta keys.
const (
	MetaEncrypt         = "encrypt"
	MetaDecrypt         = "decrypt"
	MetaOriginalPayload = "originalPayload"
)

const (
	encryptFailedMsg = "Failed to encrypt data. Please contact support."
	decryptFailedMsg = "Failed to decrypt data. Please contact support."
)

type Message struct {
	Type    MessageType
	Payload any
	Meta    map[string]any
	Error   bool
}

type LoginPayload struct {
	EDEK     string
	KEKSalt  string
	Password []byte
	UserID   string
}

type InitFromStoragePayload struct {
	UserID string
}

type Dispatcher func(ctx context.Context, msg *Message)

// Pool is the part of the worker pool the middleware drives.
type Pool interface {
	InitKeys(ctx context.Context, keys *core.WrappedKeys, pwd []byte, userID string) error
	InitFromStorage(ctx context.Context, userID string) error
	Logout(ctx context.Context) error
	Encrypt(ctx context.Context, payload any, format string) (any, error)
	Decrypt(ctx context.Context, payload any, format string) (any, error)
}

type Middleware struct {
	pool   Pool
	logger logger.Logger
}

func New(pool Pool, l logger.Logger) *Middleware {
	if l == nil {
		l = logger.Nop()
	}
	return &Middleware{
		pool:   pool,
		logger: l,
	}
}

func (m *Middleware) emitErr(errf *errs.Errorf) error {
	m.logger.Log(logger.ErrorLevel, "%v: %v: %v: %v", errf.Type, errf.Error, errf.Message, errf.ReturnRaw)
	if errf.ReturnRaw && errf.Error != nil {
		return errf.Error
	}
	return fmt.Errorf("%s", errf.Message)
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return fn()
}

// >>>

// Wrap returns a dispatcher that handles session and tagged data messages
// before handing the outcome to next.
func (m *Middleware) Wrap(next Dispatcher) Dispatcher {
	return func(ctx context.Context, msg *Message) {
		if msg == nil {
			return
		}

		switch msg.Type {
		case Login:
			next(ctx, m.login(ctx, msg))
		case InitFromStorage:
			next(ctx, m.initFromStorage(ctx, msg))
		case Logout:
			m.logout(ctx)
			next(ctx, msg)
		default:
			m.transform(ctx, msg)
			next(ctx, msg)
		}
	}
}

// login never forwards the original message, so the password stops here.
func (m *Middleware) login(ctx context.Context, msg *Message) *Message {
	var p *LoginPayload
	switch v := msg.Payload.(type) {
	case *LoginPayload:
		p = v
	case LoginPayload:
		p = &v
	}
	if p == nil {
		m.emitErr(&errs.Errorf{
			Type:    errs.ErrBadRequest,
			Message: "login message without credentials",
			Error:   fmt.Errorf("unexpected payload %T", msg.Payload),
		})
		return &Message{Type: LoginFailure, Error: true}
	}
	defer utils.Clear(p.Password)

	err := guard(func() error {
		keys := &core.WrappedKeys{EDEK: p.EDEK, KEKSalt: p.KEKSalt}
		return m.pool.InitKeys(ctx, keys, p.Password, p.UserID)
	})
	if err != nil {
		m.emitErr(&errs.Errorf{
			Type:    errs.ErrInvalidCredentials,
			Message: "invalid password",
			Error:   err,
		})
		return &Message{Type: LoginFailure, Error: true}
	}

	m.logger.Log(logger.InfoLevel, "session started for user %s", p.UserID)
	return &Message{Type: LoginSuccess}
}

func (m *Middleware) initFromStorage(ctx context.Context, msg *Message) *Message {
	var userID string
	switch v := msg.Payload.(type) {
	case *InitFromStoragePayload:
		if v != nil {
			userID = v.UserID
		}
	case InitFromStoragePayload:
		userID = v.UserID
	case string:
		userID = v
	}

	err := guard(func() error {
		return m.pool.InitFromStorage(ctx, userID)
	})
	if err != nil {
		m.emitErr(&errs.Errorf{
			Type:    errs.ErrSessionRestore,
			Message: "could not restore session",
			Error:   err,
		})
		return &Message{Type: InitFromStorageFailure, Error: true}
	}

	m.logger.Log(logger.InfoLevel, "session restored for user %s", userID)
	return &Message{Type: InitFromStorageSuccess}
}

func (m *Middleware) logout(ctx context.Context) {
	err := guard(func() error {
		return m.pool.Logout(ctx)
	})
	if err != nil {
		m.emitErr(&errs.Errorf{
			Type:    errs.ErrSessionClear,
			Message: "logout did not complete cleanly",
			Error:   err,
		})
		return
	}
	m.logger.Log(logger.InfoLevel, "session cleared")
}

// transform runs the pool on a message tagged with an encrypt or decrypt
// format. The tag is removed so the message cannot come back through.
func (m *Middleware) transform(ctx context.Context, msg *Message) {
	encTag, isEnc := msg.Meta[MetaEncrypt]
	decTag, isDec := msg.Meta[MetaDecrypt]
	if !isEnc && !isDec {
		return
	}
	delete(msg.Meta, MetaEncrypt)
	delete(msg.Meta, MetaDecrypt)

	errMsg, errType := encryptFailedMsg, errs.ErrEncryptionFailed
	run, tag := m.pool.Encrypt, encTag
	if !isEnc {
		errMsg, errType = decryptFailedMsg, errs.ErrDecryptionFailed
		run, tag = m.pool.Decrypt, decTag
	}

	original := msg.Payload
	msg.Meta[MetaOriginalPayload] = original

	format, ok := tag.(string)
	if !ok || (isEnc && isDec) {
		msg.Error = true
		msg.Payload = m.emitErr(&errs.Errorf{
			Type:    errs.ErrBadFormat,
			Message: errMsg,
			Error:   fmt.Errorf("bad transform tag on %s: encrypt=%v decrypt=%v", msg.Type, encTag, decTag),
		}).Error()
		return
	}

	var out any
	err := guard(func() (err error) {
		out, err = run(ctx, original, format)
		return err
	})
	if err != nil {
		msg.Error = true
		msg.Payload = m.emitErr(&errs.Errorf{
			Type:    errType,
			Message: errMsg,
			Error:   fmt.Errorf("%s %s: %w", msg.Type, format, err),
		}).Error()
		return
	}

	msg.Payload = out
}
