package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"finvault/e2ee/cipher"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/logger"
	"finvault/e2ee/middleware"
	"finvault/e2ee/pool"
	"finvault/e2ee/schema"
	"finvault/e2ee/settings"
	"finvault/e2ee/store"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// readPassword prompts without echo. Tests replace it.
var readPassword = func(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot read password: stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	pwd, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return pwd, nil
}

func startSpinner(w io.Writer, message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	if err := s.Color("cyan"); err != nil {
		Log.Log(logger.DebugLevel, "failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
	}

	cleanup := func() {
		msg := s.FinalMSG
		s.FinalMSG = ""
		if quiet {
			s.Stop()
		}
		if msg != "" {
			fmt.Fprintln(w, msg)
		}
	}
	return s, cleanup
}

func failed(msg string) string {
	return color.RedString("✗") + " " + msg
}

func succeeded(msg string) string {
	return color.GreenString("✓") + " " + msg
}

func newCipher(conf *settings.Settings) *cipher.AESGCM {
	return cipher.NewAESGCMCipher(
		cipher.WithIterations(conf.Crypto.KDFIterations),
		cipher.WithPlatform(cipher.Platform{EmptyPlaintextFault: conf.Crypto.EmptyPlaintextFault}),
	)
}

func newKeyStore(conf *settings.Settings) core.KeyStore {
	switch conf.Storage.SessionCache {
	case settings.CacheKeyring:
		return core.NewKeyringStore(conf.Storage.KeyringService)
	case settings.CacheMemory:
		return core.NewMemoryStore()
	default:
		return core.NoStore{}
	}
}

// persistsSessions reports whether a login outlives this process. The memory
// cache is gone as soon as the command exits.
func persistsSessions(conf *settings.Settings, keys core.KeyStore) bool {
	return conf.Storage.SessionCache == settings.CacheKeyring && keys.Available()
}

// >>>

// vault is everything a data command needs: the user store, the worker
// pool behind the middleware and the session key cache.
type vault struct {
	db     *store.Store
	keys   core.KeyStore
	pool   *pool.Pool
	next   middleware.Dispatcher
	result *middleware.Message
}

func newVault(ctx context.Context) (*vault, error) {
	db, err := store.Open(conf.Storage.Database)
	if err != nil {
		return nil, err
	}
	s, err := schema.Load(conf.Storage.Schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	v := &vault{
		db:   db,
		keys: newKeyStore(conf),
	}
	size := conf.Pool.Size
	if size == 0 {
		size = pool.DefaultSize()
	}
	v.pool = pool.New(newCipher(conf), pool.WithSize(size), pool.WithStore(v.keys), pool.WithLogger(Log))
	if err = v.pool.InitSchema(ctx, s); err != nil {
		v.Close()
		return nil, err
	}

	v.next = middleware.New(v.pool, Log).Wrap(func(_ context.Context, msg *middleware.Message) {
		v.result = msg
	})
	return v, nil
}

func (v *vault) Close() {
	v.pool.Close()
	if err := v.db.Close(); err != nil {
		Log.Log(logger.WarnLevel, "closing database: %v", err)
	}
}

// dispatch runs msg through the middleware and returns what came out.
func (v *vault) dispatch(ctx context.Context, msg *middleware.Message) *middleware.Message {
	v.result = nil
	v.next(ctx, msg)
	return v.result
}

func (v *vault) login(ctx context.Context, user *store.User, pwd []byte) error {
	out := v.dispatch(ctx, &middleware.Message{
		Type: middleware.Login,
		Payload: &middleware.LoginPayload{
			EDEK:     user.EDEK,
			KEKSalt:  user.KEKSalt,
			Password: pwd,
			UserID:   user.ID,
		},
	})
	if out == nil || out.Type != middleware.LoginSuccess {
		return errs.ErrInvalidPassword
	}
	return nil
}

// unlock loads the session key into the pool and returns the user it
// belongs to. A cached session is used when there is one; otherwise email
// is looked up and its password asked for.
func (v *vault) unlock(ctx context.Context, email string) (*store.User, error) {
	if cached, err := v.keys.Load(); err == nil && cached != nil {
		user, err := v.db.GetUser(cached.UserID)
		if err != nil {
			return nil, err
		}
		if email == "" || user.Email == store.NormalizeEmail(email) {
			out := v.dispatch(ctx, &middleware.Message{
				Type:    middleware.InitFromStorage,
				Payload: &middleware.InitFromStoragePayload{UserID: user.ID},
			})
			if out != nil && out.Type == middleware.InitFromStorageSuccess {
				return user, nil
			}
		}
	}

	if email == "" {
		return nil, fmt.Errorf("no active session, log in or pass --email")
	}
	user, err := v.db.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	pwd, err := readPassword("Password: ")
	if err != nil {
		return nil, err
	}
	if err = v.login(ctx, user, pwd); err != nil {
		return nil, err
	}
	return user, nil
}
