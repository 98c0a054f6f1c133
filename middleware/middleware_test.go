package middleware

import (
	"context"
	"reflect"
	"testing"

	"finvault/e2ee/cipher"
	"finvault/e2ee/core"
	"finvault/e2ee/pool"
	"finvault/e2ee/schema"
)

const password = "password 123"

type recorder struct {
	got []*Message
}

func (r *recorder) dispatch(_ context.Context, msg *Message) {
	r.got = append(r.got, msg)
}

func (r *recorder) last(t *testing.T) *Message {
	t.Helper()
	if len(r.got) == 0 {
		t.Fatal("nothing was dispatched")
	}
	return r.got[len(r.got)-1]
}

type setup struct {
	keys  *core.WrappedKeys
	store *core.MemoryStore
	pool  *pool.Pool
	rec   *recorder
	next  Dispatcher
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	c := cipher.NewAESGCMCipher(cipher.WithTestingIterations(1000))
	keys, err := core.GenerateKeysForNewUser(c, []byte(password))
	if err != nil {
		t.Fatalf("GenerateKeysForNewUser() error: %v", err)
	}
	s, err := schema.New(map[string]schema.Fields{
		"transaction": {
			"date":        schema.Primitive{Kind: schema.String},
			"description": schema.Primitive{Kind: schema.String},
		},
	})
	if err != nil {
		t.Fatalf("schema.New() error: %v", err)
	}

	store := core.NewMemoryStore()
	p := pool.New(c, pool.WithSize(2), pool.WithStore(store))
	t.Cleanup(p.Close)
	if err := p.InitSchema(context.Background(), s); err != nil {
		t.Fatalf("InitSchema() error: %v", err)
	}

	rec := &recorder{}
	return &setup{
		keys:  keys,
		store: store,
		pool:  p,
		rec:   rec,
		next:  New(p, nil).Wrap(rec.dispatch),
	}
}

func (s *setup) login(t *testing.T, pwd string) *Message {
	t.Helper()
	s.next(context.Background(), &Message{
		Type: Login,
		Payload: &LoginPayload{
			EDEK:     s.keys.EDEK,
			KEKSalt:  s.keys.KEKSalt,
			Password: []byte(pwd),
			UserID:   "user-1",
		},
	})
	return s.rec.last(t)
}

func TestLogin(t *testing.T) {
	s := newSetup(t)

	if got := s.login(t, "wrong"); got.Type != LoginFailure || got.Payload != nil {
		t.Errorf("login with wrong password = %+v, want LoginFailure without payload", got)
	}
	if got := s.login(t, password); got.Type != LoginSuccess || got.Payload != nil || got.Error {
		t.Errorf("login = %+v, want LoginSuccess without payload", got)
	}
	for _, msg := range s.rec.got {
		if msg.Type == Login {
			t.Error("the login message itself must not be forwarded")
		}
	}
}

func TestLogin_BadPayload(t *testing.T) {
	s := newSetup(t)

	s.next(context.Background(), &Message{Type: Login, Payload: "nope"})
	if got := s.rec.last(t); got.Type != LoginFailure {
		t.Errorf("got %s, want LoginFailure", got.Type)
	}
}

func TestTaggedMessages(t *testing.T) {
	s := newSetup(t)
	s.login(t, password)
	ctx := context.Background()

	in := map[string]any{"id": "1", "date": "2020", "description": "coffee"}
	s.next(ctx, &Message{
		Type:    "transactions/add",
		Payload: in,
		Meta:    map[string]any{MetaEncrypt: "single-transaction"},
	})
	enc := s.rec.last(t)
	if enc.Error {
		t.Fatalf("encrypt failed: %v", enc.Payload)
	}
	if _, ok := enc.Meta[MetaEncrypt]; ok {
		t.Error("encrypt tag should be removed")
	}
	if !reflect.DeepEqual(enc.Meta[MetaOriginalPayload], in) {
		t.Errorf("originalPayload = %v, want %v", enc.Meta[MetaOriginalPayload], in)
	}
	if enc.Payload.(map[string]any)["date"] == "2020" {
		t.Error("payload was not encrypted")
	}

	s.next(ctx, &Message{
		Type:    "transactions/loaded",
		Payload: enc.Payload,
		Meta:    map[string]any{MetaDecrypt: "single-transaction"},
	})
	dec := s.rec.last(t)
	if dec.Error {
		t.Fatalf("decrypt failed: %v", dec.Payload)
	}
	if _, ok := dec.Meta[MetaDecrypt]; ok {
		t.Error("decrypt tag should be removed")
	}
	if !reflect.DeepEqual(dec.Payload, in) {
		t.Errorf("decrypted payload = %v, want %v", dec.Payload, in)
	}
}

func TestTaggedMessages_Failures(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want string
	}{
		{"encrypt before login", map[string]any{MetaEncrypt: "single-transaction"}, encryptFailedMsg},
		{"decrypt before login", map[string]any{MetaDecrypt: "single-transaction"}, decryptFailedMsg},
		{"unknown model", map[string]any{MetaEncrypt: "single-budget"}, encryptFailedMsg},
		{"tag not a string", map[string]any{MetaDecrypt: 42}, decryptFailedMsg},
		{"both tags", map[string]any{MetaEncrypt: "single-transaction", MetaDecrypt: "single-transaction"}, encryptFailedMsg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t)
			in := map[string]any{"date": "2020"}
			s.next(context.Background(), &Message{Type: "data", Payload: in, Meta: tt.meta})

			got := s.rec.last(t)
			if !got.Error || got.Payload != tt.want {
				t.Errorf("got error=%v payload=%v, want %q", got.Error, got.Payload, tt.want)
			}
			if !reflect.DeepEqual(got.Meta[MetaOriginalPayload], in) {
				t.Error("originalPayload should be kept on failure")
			}
		})
	}
}

func TestPassThrough(t *testing.T) {
	s := newSetup(t)

	msg := &Message{Type: "ui/toggle", Payload: 1, Meta: map[string]any{"other": true}}
	s.next(context.Background(), msg)
	if got := s.rec.last(t); got != msg || got.Payload != 1 || len(got.Meta) != 1 {
		t.Errorf("untagged message was changed: %+v", got)
	}
}

func TestInitFromStorageAndLogout(t *testing.T) {
	s := newSetup(t)
	s.login(t, password)
	ctx := context.Background()

	s.next(ctx, &Message{Type: InitFromStorage, Payload: &InitFromStoragePayload{UserID: "user-2"}})
	if got := s.rec.last(t); got.Type != InitFromStorageFailure {
		t.Errorf("restore for another user = %s, want InitFromStorageFailure", got.Type)
	}
	s.next(ctx, &Message{Type: InitFromStorage, Payload: InitFromStoragePayload{UserID: "user-1"}})
	if got := s.rec.last(t); got.Type != InitFromStorageSuccess {
		t.Errorf("restore = %s, want InitFromStorageSuccess", got.Type)
	}

	logout := &Message{Type: Logout}
	s.next(ctx, logout)
	if got := s.rec.last(t); got != logout {
		t.Errorf("logout should be forwarded as is, got %+v", got)
	}
	if stored, _ := s.store.Load(); stored != nil {
		t.Error("logout should clear the key store")
	}

	s.next(ctx, &Message{Type: "data", Payload: map[string]any{"date": "x"}, Meta: map[string]any{MetaEncrypt: "single-transaction"}})
	if got := s.rec.last(t); !got.Error {
		t.Error("encrypt after logout should fail")
	}
}

type panicPool struct{}

func (panicPool) InitKeys(context.Context, *core.WrappedKeys, []byte, string) error {
	panic("boom")
}

func (panicPool) InitFromStorage(context.Context, string) error { panic("boom") }

func (panicPool) Logout(context.Context) error { panic("boom") }

func (panicPool) Encrypt(context.Context, any, string) (any, error) { panic("boom") }

func (panicPool) Decrypt(context.Context, any, string) (any, error) { panic("boom") }

func TestNeverPanics(t *testing.T) {
	rec := &recorder{}
	next := New(panicPool{}, nil).Wrap(rec.dispatch)
	ctx := context.Background()

	next(ctx, &Message{Type: Login, Payload: LoginPayload{Password: []byte("x")}})
	next(ctx, &Message{Type: InitFromStorage, Payload: "user-1"})
	next(ctx, &Message{Type: Logout})
	next(ctx, &Message{Type: "data", Meta: map[string]any{MetaEncrypt: "single-transaction"}})

	want := []MessageType{LoginFailure, InitFromStorageFailure, Logout, "data"}
	if len(rec.got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(rec.got), len(want))
	}
	for i, msg := range rec.got {
		if msg.Type != want[i] {
			t.Errorf("message %d = %s, want %s", i, msg.Type, want[i])
		}
	}
	if !rec.got[3].Error || rec.got[3].Payload != encryptFailedMsg {
		t.Errorf("data message = %+v, want errored", rec.got[3])
	}
}
