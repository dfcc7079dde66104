// Package chat implements the chat room commands on top of the reactor: user
// registration, login, broadcast of chat lines and logout.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/go-chatcore/credstore"
	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/protocol"
	"github.com/cyberinferno/go-chatcore/session"
	"github.com/cyberinferno/go-chatcore/transport"
	"github.com/cyberinferno/go-chatcore/workerpool"
)

const defaultStoreTimeout = 5 * time.Second

// Service parses client frames into tasks and runs the commands. It
// implements reactor.Dispatcher.
type Service struct {
	store    credstore.Store
	registry *session.Registry
	logger   logger.Logger

	writeTimeout time.Duration
	storeTimeout time.Duration
	bcryptCost   int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithWriteTimeout bounds each reply. Zero uses the transport default.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.writeTimeout = d
	}
}

// WithStoreTimeout bounds each credential store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithBcryptCost sets the cost used to hash new secrets.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// NewService returns a Service storing users in store and tracking logged in
// connections in registry.
func NewService(store credstore.Store, registry *session.Registry, opts ...Option) *Service {
	s := &Service{
		store:        store,
		registry:     registry,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewNopLogger()
	}

	return s
}

// Dispatch parses payload and returns the task running its command. A body
// that fails to parse is reported as protocol.ErrMalformed and no task runs.
func (s *Service) Dispatch(conn *transport.Conn, payload []byte) (workerpool.Task, error) {
	req, err := protocol.ParseRequest(payload)
	if err != nil {
		return nil, err
	}

	return s.Task(conn, req), nil
}

// Task binds req to the connection it arrived on.
func (s *Service) Task(m session.Member, req protocol.Request) workerpool.Task {
	return func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
		defer cancel()

		switch req.Cmd {
		case protocol.CmdRegister:
			return nil, s.Register(ctx, m, req.Message)
		case protocol.CmdLogin:
			return nil, s.Login(ctx, m, req.Message)
		case protocol.CmdChat:
			return s.Chat(m, req.Name, req.Color, req.Message), nil
		case protocol.CmdLogout:
			s.Logout(m)
			return nil, nil
		default:
			return nil, fmt.Errorf("chat: unhandled command %s", req.Cmd)
		}
	}
}

// Disconnected returns the teardown task removing conn from the registry.
func (s *Service) Disconnected(conn *transport.Conn) workerpool.Task {
	return func() (any, error) {
		s.Logout(conn)
		return nil, nil
	}
}

// AddUser hashes secret and registers name.
func (s *Service) AddUser(ctx context.Context, name, secret string) error {
	if secret == "" {
		return errors.New("chat: empty secret")
	}
	if err := credstore.ValidateName(name); err != nil {
		return err
	}

	hash, err := credstore.HashSecret(secret, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("chat: hash secret: %w", err)
	}

	return s.store.Insert(ctx, name, hash)
}

// Register handles a "name secret" registration and replies with code 1 on
// success or code 0 otherwise.
func (s *Service) Register(ctx context.Context, m session.Member, message string) error {
	code := protocol.CodeRegisterFailed

	name, secret, ok := protocol.SplitCredentials(message)
	if ok {
		if err := s.AddUser(ctx, name, secret); err != nil {
			s.logger.Info("registration refused",
				logger.Field{Key: "conn", Value: uint64(m.ID())},
				logger.Field{Key: "user", Value: name},
				logger.Field{Key: "error", Value: err.Error()})
		} else {
			code = protocol.CodeRegisterOK
			s.logger.Info("user registered",
				logger.Field{Key: "conn", Value: uint64(m.ID())},
				logger.Field{Key: "user", Value: name})
		}
	}

	return s.reply(m, code)
}

// Login checks "name secret" against the store. On success the member joins
// the registry before code 3 is sent; otherwise code 2 is sent.
func (s *Service) Login(ctx context.Context, m session.Member, message string) error {
	name, secret, ok := protocol.SplitCredentials(message)
	if !ok {
		return s.reply(m, protocol.CodeLoginFailed)
	}

	stored, found, err := s.store.Lookup(ctx, name)
	if err != nil {
		s.logger.Error("credential lookup failed",
			logger.Field{Key: "user", Value: name},
			logger.Field{Key: "error", Value: err.Error()})
		return errors.Join(err, s.reply(m, protocol.CodeLoginFailed))
	}
	if !found {
		return s.reply(m, protocol.CodeLoginFailed)
	}

	match, err := credstore.VerifySecret(stored, secret)
	if err != nil {
		s.logger.Warn("stored secret unusable",
			logger.Field{Key: "user", Value: name},
			logger.Field{Key: "error", Value: err.Error()})
	}
	if !match {
		return s.reply(m, protocol.CodeLoginFailed)
	}

	if !s.registry.Login(m) {
		// Closed while the lookup ran; nobody is left to answer.
		return nil
	}

	s.logger.Info("user logged in",
		logger.Field{Key: "conn", Value: uint64(m.ID())},
		logger.Field{Key: "user", Value: name})
	return s.reply(m, protocol.CodeLoginOK)
}

// Chat relays a chat line to every logged in member except the sender. The
// sender does not have to be logged in.
func (s *Service) Chat(m session.Member, name string, color int, message string) session.BroadcastResult {
	payload := protocol.Response{
		Code:    protocol.CodeChatMessage,
		Name:    name,
		Color:   color,
		Message: message,
	}.Encode()

	return s.registry.Broadcast(m.ID(), payload)
}

// Logout removes m from the registry. It sends no reply.
func (s *Service) Logout(m session.Member) {
	if s.registry.Logout(m.ID()) {
		s.logger.Info("user logged out", logger.Field{Key: "conn", Value: uint64(m.ID())})
	}
}

func (s *Service) reply(m session.Member, code protocol.Code) error {
	err := m.WriteFrame(protocol.Response{Code: code}.Encode(), s.writeTimeout)
	if errors.Is(err, transport.ErrConnectionLost) {
		_ = m.Abort()
	}

	return err
}
