package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "relay:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists sessions, orders and mailboxes in Upstash Redis via REST.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var (
	_ SessionStore = (*upstashSessions)(nil)
	_ OrderStore   = (*upstashOrders)(nil)
	_ Mailbox      = (*upstashMailbox)(nil)
	_ Backend      = (*UpstashRedisStore)(nil)
)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultStoreTTL
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       ttl,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) SessionStore() SessionStore { return (*upstashSessions)(s) }
func (s *UpstashRedisStore) OrderStore() OrderStore     { return (*upstashOrders)(s) }
func (s *UpstashRedisStore) Mailbox() Mailbox           { return (*upstashMailbox)(s) }
func (s *UpstashRedisStore) Close() error               { return nil }

/* ------------------------------- sessions ------------------------------- */

type upstashSessions UpstashRedisStore

func (s *upstashSessions) Load(ctx context.Context, sessionID string) (*Session, error) {
	key, err := s.store().sessionKey(sessionID)
	if err != nil {
		return nil, err
	}

	var st Session
	if err := s.store().getJSON(ctx, key, &st); err != nil {
		if errors.Is(err, errNilResult) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session state loaded from store: %w", err)
	}
	return &st, nil
}

func (s *upstashSessions) Save(ctx context.Context, st *Session) error {
	if st == nil {
		return ErrNilSessionState
	}
	key, err := s.store().sessionKey(st.SessionID)
	if err != nil {
		return err
	}
	if st.LastActiveAt.IsZero() {
		st.LastActiveAt = time.Now().UTC()
	}
	return s.store().setJSON(ctx, key, st)
}

func (s *upstashSessions) Delete(ctx context.Context, sessionID string) error {
	key, err := s.store().sessionKey(sessionID)
	if err != nil {
		return err
	}
	_, err = s.store().exec(ctx, []any{"DEL", key})
	return err
}

func (s *upstashSessions) store() *UpstashRedisStore { return (*UpstashRedisStore)(s) }

/* -------------------------------- orders -------------------------------- */

type upstashOrders UpstashRedisStore

func (s *upstashOrders) Create(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	st := s.store()
	contactKey := st.key("order:contact:" + o.Restaurant.ContactID)

	resp, err := st.exec(ctx, []any{"SET", contactKey, o.OrderID, "NX"})
	if err != nil {
		return fmt.Errorf("claim restaurant contact: %w", err)
	}
	if isNilResult(resp.Result) {
		holder, err := st.getString(ctx, contactKey)
		if err != nil && !errors.Is(err, errNilResult) {
			return fmt.Errorf("read contact holder: %w", err)
		}
		if holder != o.OrderID {
			return ErrContactInUse
		}
	}

	if err := st.setJSON(ctx, st.key("order:"+o.OrderID), o); err != nil {
		return err
	}
	if _, err := st.exec(ctx, st.withTTL([]any{"SET", st.key("order:session:" + o.SessionID), o.OrderID})); err != nil {
		return fmt.Errorf("index order by session: %w", err)
	}
	return nil
}

func (s *upstashOrders) Get(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrOrderNotFound
	}
	var o Order
	if err := s.store().getJSON(ctx, s.store().key("order:"+orderID), &o); err != nil {
		if errors.Is(err, errNilResult) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return &o, nil
}

func (s *upstashOrders) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	return s.getByIndex(ctx, "order:session:"+sessionID)
}

func (s *upstashOrders) GetByContact(ctx context.Context, contactID string) (*Order, error) {
	return s.getByIndex(ctx, "order:contact:"+contactID)
}

func (s *upstashOrders) getByIndex(ctx context.Context, suffix string) (*Order, error) {
	orderID, err := s.store().getString(ctx, s.store().key(suffix))
	if err != nil {
		if errors.Is(err, errNilResult) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return s.Get(ctx, orderID)
}

func (s *upstashOrders) Update(ctx context.Context, o *Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	st := s.store()
	if err := st.setJSON(ctx, st.key("order:"+o.OrderID), o); err != nil {
		return err
	}
	if o.IsOpen() {
		return nil
	}

	contactKey := st.key("order:contact:" + o.Restaurant.ContactID)
	holder, err := st.getString(ctx, contactKey)
	if err != nil {
		if errors.Is(err, errNilResult) {
			return nil
		}
		return err
	}
	if holder == o.OrderID {
		if _, err := st.exec(ctx, []any{"DEL", contactKey}); err != nil {
			return fmt.Errorf("release restaurant contact: %w", err)
		}
	}
	return nil
}

func (s *upstashOrders) Delete(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	st := s.store()
	for _, suffix := range []string{"order:contact:" + o.Restaurant.ContactID, "order:session:" + o.SessionID} {
		key := st.key(suffix)
		holder, err := st.getString(ctx, key)
		if err != nil && !errors.Is(err, errNilResult) {
			return err
		}
		if holder != orderID {
			continue
		}
		if _, err := st.exec(ctx, []any{"DEL", key}); err != nil {
			return fmt.Errorf("drop order index: %w", err)
		}
	}
	if _, err := st.exec(ctx, []any{"DEL", st.key("order:" + orderID)}); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (s *upstashOrders) store() *UpstashRedisStore { return (*UpstashRedisStore)(s) }

/* ------------------------------- mailbox -------------------------------- */

type upstashMailbox UpstashRedisStore

func (s *upstashMailbox) Push(ctx context.Context, sessionID string, msg PendingMessage) error {
	key, err := s.store().mailboxKey(sessionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pending message: %w", err)
	}
	_, err = s.store().exec(ctx, []any{"RPUSH", key, string(payload)})
	return err
}

func (s *upstashMailbox) Pop(ctx context.Context, sessionID string) (PendingMessage, error) {
	key, err := s.store().mailboxKey(sessionID)
	if err != nil {
		return PendingMessage{}, err
	}
	resp, err := s.store().exec(ctx, []any{"LPOP", key})
	if err != nil {
		return PendingMessage{}, err
	}
	if isNilResult(resp.Result) {
		return PendingMessage{}, ErrMailboxEmpty
	}
	var encoded string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return PendingMessage{}, fmt.Errorf("decode mailbox payload: %w", err)
	}
	var msg PendingMessage
	if err := json.Unmarshal([]byte(encoded), &msg); err != nil {
		return PendingMessage{}, fmt.Errorf("unmarshal pending message: %w", err)
	}
	return msg, nil
}

func (s *upstashMailbox) store() *UpstashRedisStore { return (*UpstashRedisStore)(s) }

/* ------------------------------- plumbing ------------------------------- */

var errNilResult = errors.New("redis returned nil")

func (s *UpstashRedisStore) key(suffix string) string {
	return strings.TrimSpace(s.keyPrefix) + suffix
}

func (s *UpstashRedisStore) sessionKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.key("session:" + sessionID), nil
}

func (s *UpstashRedisStore) mailboxKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.key("mailbox:" + sessionID), nil
}

func (s *UpstashRedisStore) withTTL(cmd []any) []any {
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}
	return cmd
}

func (s *UpstashRedisStore) setJSON(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.exec(ctx, s.withTTL([]any{"SET", key, string(payload)}))
	return err
}

func (s *UpstashRedisStore) getJSON(ctx context.Context, key string, out any) error {
	encoded, err := s.getString(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(encoded), out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *UpstashRedisStore) getString(ctx context.Context, key string) (string, error) {
	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return "", err
	}
	if isNilResult(resp.Result) {
		return "", errNilResult
	}
	var encoded string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return "", fmt.Errorf("decode redis payload: %w", err)
	}
	return encoded, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func isNilResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
