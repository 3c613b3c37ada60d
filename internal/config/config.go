package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"amoflow/internal/authz"
	"amoflow/internal/models"
)

const DefaultPath = "config/config.yaml"

type AmoCRMConfig struct {
	SubDomain         string        `yaml:"sub_domain"`
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	AuthorizationCode string        `yaml:"authorization_code"`
	RedirectURL       string        `yaml:"redirect_url"`
	BaseURL           string        `yaml:"base_url"` // пусто — https://<sub_domain>.amocrm.ru
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type TokenStoreConfig struct {
	Driver   string `yaml:"driver"` // file | redis | postgres | sqlite
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	DSN      string `yaml:"dsn"`
	Key      string `yaml:"key"`
}

// ThrottleConfig — фиксированные паузы между запросами к amoCRM.
type ThrottleConfig struct {
	PageDelay   time.Duration `yaml:"page_delay"`
	MoveDelay   time.Duration `yaml:"move_delay"`
	VerifyDelay time.Duration `yaml:"verify_delay"`
	CopyDelay   time.Duration `yaml:"copy_delay"`
	ItemDelay   time.Duration `yaml:"item_delay"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	ErrorLog string `yaml:"error_log"`
	Debug    bool   `yaml:"debug"`
}

// ConsoleUser — дополнительная учётка консоли. Role: operator | viewer.
type ConsoleUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type ConsoleConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt; пусто — консоль без авторизации
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	Users        []ConsoleUser `yaml:"users"`
}

// Accounts returns the main operator account (if a password is set) followed by Users.
func (c ConsoleConfig) Accounts() []ConsoleUser {
	var out []ConsoleUser
	if c.PasswordHash != "" {
		out = append(out, ConsoleUser{Username: c.Username, PasswordHash: c.PasswordHash, Role: authz.RoleOperator})
	}
	for _, u := range c.Users {
		if u.Role == "" {
			u.Role = authz.RoleViewer
		}
		out = append(out, u)
	}
	return out
}

// AuthEnabled — консоль требует входа, если задана хотя бы одна учётка.
func (c ConsoleConfig) AuthEnabled() bool {
	return len(c.Accounts()) > 0
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

type EmailConfig struct {
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password"`
	FromEmail    string   `yaml:"from_email"`
	To           []string `yaml:"to"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
	FontPath string         `yaml:"font_path"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	AmoCRM     AmoCRMConfig                `yaml:"amocrm"`
	TokenStore TokenStoreConfig            `yaml:"token_store"`
	Processing models.ProcessingParameters `yaml:"processing"`
	Throttle   ThrottleConfig              `yaml:"throttle"`
	Log        LogConfig                   `yaml:"log"`
	Console    ConsoleConfig               `yaml:"console"`
	Notify     NotifyConfig                `yaml:"notify"`
}

// LoadConfig читает yaml, подставляет значения по умолчанию и переменные окружения
// AMOCRM_* (те же имена, что и в старом .env), затем валидирует результат.
// Отсутствующий файл не ошибка: конфиг можно целиком задать через окружение.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.AmoCRM.RequestsPerSecond == 0 {
		c.AmoCRM.RequestsPerSecond = 7
	}
	if c.AmoCRM.Timeout == 0 {
		c.AmoCRM.Timeout = 30 * time.Second
	}
	if c.TokenStore.Driver == "" {
		c.TokenStore.Driver = "file"
	}
	if c.TokenStore.Path == "" {
		c.TokenStore.Path = "TOKEN.txt"
	}
	if c.TokenStore.Key == "" {
		c.TokenStore.Key = "amocrm"
	}
	if c.Processing.BudgetThreshold == 0 {
		c.Processing.BudgetThreshold = 5000
	}
	if c.Processing.CopyBudgetValue == 0 {
		c.Processing.CopyBudgetValue = 4999
	}
	if c.Processing.Limit <= 0 {
		c.Processing.Limit = 250
	}
	if c.Throttle.PageDelay == 0 {
		c.Throttle.PageDelay = 250 * time.Millisecond
	}
	if c.Throttle.MoveDelay == 0 {
		c.Throttle.MoveDelay = 300 * time.Millisecond
	}
	if c.Throttle.VerifyDelay == 0 {
		c.Throttle.VerifyDelay = 500 * time.Millisecond
	}
	if c.Throttle.CopyDelay == 0 {
		c.Throttle.CopyDelay = 500 * time.Millisecond
	}
	if c.Throttle.ItemDelay == 0 {
		c.Throttle.ItemDelay = 100 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.ErrorLog == "" {
		c.Log.ErrorLog = "ERROR_LOG.txt"
	}
	if c.Console.Username == "" {
		c.Console.Username = "admin"
	}
	if c.Console.TokenTTL == 0 {
		c.Console.TokenTTL = 12 * time.Hour
	}
	if c.Notify.Email.SMTPPort == 0 {
		c.Notify.Email.SMTPPort = 587
	}
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"AMOCRM_SUBDOMAIN":     &c.AmoCRM.SubDomain,
		"AMOCRM_CLIENT_ID":     &c.AmoCRM.ClientID,
		"AMOCRM_CLIENT_SECRET": &c.AmoCRM.ClientSecret,
		"AMOCRM_AUTH_CODE":     &c.AmoCRM.AuthorizationCode,
		"AMOCRM_REDIRECT_URI":  &c.AmoCRM.RedirectURL,
		"AMOCRM_BASE_URL":      &c.AmoCRM.BaseURL,
		"AMOCRM_TOKEN_DRIVER":  &c.TokenStore.Driver,
		"AMOCRM_TOKEN_FILE":    &c.TokenStore.Path,
		"AMOCRM_TOKEN_DSN":     &c.TokenStore.DSN,
		"AMOCRM_REDIS_URL":     &c.TokenStore.RedisURL,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"AMOCRM_PIPELINE_ID":               &c.Processing.PipelineID,
		"AMOCRM_APPLICATION_STAGE_ID":      &c.Processing.ApplicationStageID,
		"AMOCRM_WAITING_STAGE_ID":          &c.Processing.WaitingStageID,
		"AMOCRM_CLIENT_CONFIRMED_STAGE_ID": &c.Processing.ClientConfirmedStageID,
	}
	for key, dst := range ints {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &FieldError{Field: key, Reason: "must be an integer"}
		}
		*dst = n
	}

	floats := map[string]*float64{
		"AMOCRM_BUDGET_THRESHOLD":  &c.Processing.BudgetThreshold,
		"AMOCRM_COPY_BUDGET_VALUE": &c.Processing.CopyBudgetValue,
	}
	for key, dst := range floats {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &FieldError{Field: key, Reason: "must be a number"}
		}
		*dst = n
	}

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		c.Log.Debug = true
		c.Log.Level = "debug"
	}
	return nil
}

// Validate проверяет обязательные поля подключения к amoCRM.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"amocrm.sub_domain", c.AmoCRM.SubDomain},
		{"amocrm.client_id", c.AmoCRM.ClientID},
		{"amocrm.client_secret", c.AmoCRM.ClientSecret},
		{"amocrm.redirect_url", c.AmoCRM.RedirectURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &FieldError{Field: r.name, Reason: "is required"}
		}
	}
	if c.Processing.PipelineID <= 0 {
		return &FieldError{Field: "processing.pipeline_id", Reason: "is required"}
	}
	switch c.TokenStore.Driver {
	case "file", "redis", "postgres", "sqlite":
	default:
		return &FieldError{Field: "token_store.driver", Reason: fmt.Sprintf("unknown driver %q", c.TokenStore.Driver)}
	}
	if (c.TokenStore.Driver == "postgres" || c.TokenStore.Driver == "sqlite") && c.TokenStore.DSN == "" {
		return &FieldError{Field: "token_store.dsn", Reason: "is required for driver " + c.TokenStore.Driver}
	}
	if c.TokenStore.Driver == "redis" && c.TokenStore.RedisURL == "" {
		return &FieldError{Field: "token_store.redis_url", Reason: "is required for driver redis"}
	}
	for i, u := range c.Console.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return &FieldError{Field: fmt.Sprintf("console.users[%d]", i), Reason: "needs username and password_hash"}
		}
		if u.Role != "" && !authz.Valid(u.Role) {
			return &FieldError{Field: fmt.Sprintf("console.users[%d].role", i), Reason: fmt.Sprintf("unknown role %q", u.Role)}
		}
	}
	return nil
}
