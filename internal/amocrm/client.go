// Package amocrm — клиент amoCRM API v4: OAuth2-токен, пагинация, паузы между запросами.
package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"amoflow/internal/config"
	"amoflow/internal/models"
	"amoflow/internal/repositories"
	"amoflow/internal/throttle"
)

const (
	// DefaultPageLimit — максимальный размер страницы, который принимает amoCRM.
	DefaultPageLimit = 250
	// DefaultPageDelay — пауза между страницами GetAll.
	DefaultPageDelay = 250 * time.Millisecond

	userAgent = "amoCRM-oAuth-client/1.0"
	apiPrefix = "/api/v4/"
)

// Client — клиент amoCRM API v4 одного аккаунта (sub_domain).
type Client struct {
	cfg     config.AmoCRMConfig
	baseURL string
	http    *http.Client
	tokens  repositories.TokenRepository
	pacer   throttle.Pacer
	limiter *rate.Limiter
	log     *log.Logger
	now     func() time.Time

	pageLimit int
	pageDelay time.Duration

	token *models.Token
}

// Option настраивает Client при создании.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (по умолчанию с таймаутом amocrm.timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithPacer задаёт паузы между страницами; в тестах — throttle.NoopPacer.
func WithPacer(p throttle.Pacer) Option { return func(c *Client) { c.pacer = p } }

// WithLogger задаёт логгер для тегов [amocrm].
func WithLogger(l *log.Logger) Option { return func(c *Client) { c.log = l } }

// WithClock подменяет время для проверки срока токена.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLimiter заменяет ограничитель запросов; nil снимает ограничение.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l == nil {
			l = rate.NewLimiter(rate.Inf, 0)
		}
		c.limiter = l
	}
}

// WithPaging sets the page size and the pause between page fetches of GetAll.
func WithPaging(limit int, delay time.Duration) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
		if delay >= 0 {
			c.pageDelay = delay
		}
	}
}

// New собирает клиент без обращения к сети. Для рабочих вызовов нужен NewClient.
func New(cfg config.AmoCRMConfig, tokens repositories.TokenRepository, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		baseURL:   baseURL(cfg),
		http:      &http.Client{Timeout: cfg.Timeout},
		tokens:    tokens,
		pacer:     throttle.SleepPacer{},
		log:       log.StandardLogger(),
		now:       time.Now,
		pageLimit: DefaultPageLimit,
		pageDelay: DefaultPageDelay,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient строит клиент и один раз проверяет токен. Посреди сессии токен не обновляется.
func NewClient(ctx context.Context, cfg config.AmoCRMConfig, tokens repositories.TokenRepository, opts ...Option) (*Client, error) {
	c := New(cfg, tokens, opts...)
	if err := c.EnsureValidToken(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func baseURL(cfg config.AmoCRMConfig) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.amocrm.ru", cfg.SubDomain)
}

// entity во всех методах ниже — путь относительно /api/v4/.

// Get reads entity (or entity/id when id > 0) into out. A 204 leaves out untouched.
func (c *Client) Get(ctx context.Context, entity string, id int64, params url.Values, out any) (int, error) {
	path := entity
	if id > 0 {
		path = entity + "/" + strconv.FormatInt(id, 10)
	}
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// GetAll проходит страницы page=1..n по limit записей, собирая _embedded[<последний сегмент entity>].
// Останавливается на первой пустой странице, на странице без коллекции или на 204.
// limit в params имеет приоритет над размером страницы клиента.
func (c *Client) GetAll(ctx context.Context, entity string, params url.Values) ([]json.RawMessage, error) {
	key := entity[strings.LastIndex(entity, "/")+1:]

	var all []json.RawMessage
	for page := 1; ; page++ {
		if page > 1 {
			if err := c.pacer.Wait(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}

		q := url.Values{}
		for k, v := range params {
			q[k] = append([]string(nil), v...)
		}
		q.Set("page", strconv.Itoa(page))
		if n, err := strconv.Atoi(q.Get("limit")); err != nil || n <= 0 {
			q.Set("limit", strconv.Itoa(c.pageLimit))
		}

		var body struct {
			Embedded map[string]json.RawMessage `json:"_embedded"`
		}
		status, err := c.do(ctx, http.MethodGet, entity, q, nil, &body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNoContent {
			break
		}
		raw, ok := body.Embedded[key]
		if !ok {
			break
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("amocrm: decode %s page %d: %w", entity, page, err)
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	return all, nil
}

// Post отправляет items одним пакетом (API v4 всегда принимает массив).
func (c *Client) Post(ctx context.Context, entity string, items any, out any) (int, error) {
	return c.do(ctx, http.MethodPost, entity, nil, items, out)
}

func (c *Client) Patch(ctx context.Context, entity string, items any, out any) (int, error) {
	return c.do(ctx, http.MethodPatch, entity, nil, items, out)
}

func (c *Client) Delete(ctx context.Context, entity string, id int64) error {
	path := entity
	if id > 0 {
		path = entity + "/" + strconv.FormatInt(id, 10)
	}
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload any, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	u := c.baseURL + apiPrefix + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("amocrm: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Errorf("[amocrm] %s %s: transport error", method, u)
		return 0, fmt.Errorf("amocrm: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("amocrm: read %s %s: %w", method, u, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		apiErr := &APIError{
			Method:  method,
			URL:     u,
			Status:  resp.StatusCode,
			Message: StatusMessage(resp.StatusCode),
			Body:    truncate(string(raw), 512),
		}
		c.log.WithFields(log.Fields{"status": apiErr.Status, "body": apiErr.Body}).
			Errorf("[amocrm] Ошибка: %s, код ошибки: %d, URL: %s", apiErr.Message, apiErr.Status, u)
		return resp.StatusCode, apiErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("amocrm: decode %s %s: %w", method, u, err)
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
