package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Auth           AuthConfig           `yaml:"auth"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	History        HistoryConfig        `yaml:"history"`
	Dispatch       DispatchConfig       `yaml:"dispatch"`
	Completion     CompletionConfig     `yaml:"completion"`
	Relay          RelayConfig          `yaml:"relay"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Maintenance    MaintenanceConfig    `yaml:"maintenance"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
	// TrustedProxies lists the addresses (IPs or CIDRs) whose forwarding
	// headers are believed. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TrustedPrefixes parses TrustedProxies. A bare IP becomes a single-host prefix.
func (s ServerConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type AuthConfig struct {
	// Token is the shared bearer token webhook callers present.
	Token string `yaml:"token"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Window            time.Duration `yaml:"window"`
	// Backend is "memory" (default) or "redis".
	Backend string `yaml:"backend"`
}

type HistoryConfig struct {
	Dir         string `yaml:"dir"`
	JournalPath string `yaml:"journal_path"`
	PayloadPath string `yaml:"payload_path"`
	IDsPath     string `yaml:"ids_path"`
}

type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

type CompletionConfig struct {
	// Type is "gemini" or "openai".
	Type            string        `yaml:"type"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float64       `yaml:"temperature"`
	TopK            int           `yaml:"top_k"`
	TopP            float64       `yaml:"top_p"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxReplyChars   int           `yaml:"max_reply_chars"`
}

type RelayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIToken     string        `yaml:"api_token"`
	Timeout      time.Duration `yaml:"timeout"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type MaintenanceConfig struct {
	Schedule     string        `yaml:"schedule"`
	LogMaxAge    time.Duration `yaml:"log_max_age"`
	KeepLines    int           `yaml:"keep_lines"`
	BackupMaxAge time.Duration `yaml:"backup_max_age"`
	TempMaxAge   time.Duration `yaml:"temp_max_age"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
}

// GeminiSystemPrompt is the default instruction prepended to every completion.
const GeminiSystemPrompt = `Você é um atendente de primeira linha da Multiclara, especialista em SaaS, IaaS e PaaS. Seu objetivo principal é ser resolutivo. Ao invés de apenas descrever um serviço, foque em solucionar o problema do usuário.

// MÉTODO DE AÇÃO OBRIGATÓRIO:
Se a pergunta do usuário for um pedido de ajuda (ex: 'algo não funciona', 'estou com um erro', 'não consigo fazer X'), sua primeira ação deve ser sempre sugerir passos práticos ou fazer perguntas claras para diagnosticar o problema. Nunca dê uma resposta genérica que apenas descreve um produto ou tecnologia.

// EXEMPLO DE COMPORTAMENTO:
- Se o usuário diz 'Meu app está lento', pergunte: 'Claro, vamos investigar! Você notou se a lentidão ocorre em horários específicos ou após alguma ação?'
- Se o usuário diz 'Não consigo conectar ao banco de dados', sugira: 'Ok, vamos verificar alguns pontos. Você pode confirmar se as credenciais estão corretas e se o IP da aplicação tem permissão de acesso?'

Recuse educadamente perguntas fora do escopo de SaaS, IaaS ou PaaS. Presuma que as permissões necessárias já foram concedidas. Mantenha a linguagem simples e amigável e não utilise este caracter '*' para deixar em negrito, utilize '<b> texto em negrito </b>'.`

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxBodyBytes:     1 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Window:            time.Minute,
			Backend:           "memory",
		},
		History: HistoryConfig{
			Dir:         "historico",
			JournalPath: "bot_freshchat.log",
			PayloadPath: "dados_recebidos.txt",
			IDsPath:     "ids_extraidos.txt",
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Completion: CompletionConfig{
			Type:            "gemini",
			BaseURL:         DefaultGeminiBaseURL,
			Model:           DefaultGeminiModel,
			Timeout:         30 * time.Second,
			Temperature:     0.4,
			TopK:            20,
			TopP:            0.8,
			MaxOutputTokens: 2048,
			SystemPrompt:    GeminiSystemPrompt,
			MaxReplyChars:   4000,
		},
		Relay: RelayConfig{
			BaseURL:      "https://api.freshchat.com/v2",
			Timeout:      30 * time.Second,
			CheckTimeout: 10 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			Schedule:     "0 3 * * *",
			LogMaxAge:    7 * 24 * time.Hour,
			KeepLines:    1000,
			BackupMaxAge: 30 * 24 * time.Hour,
			TempMaxAge:   time.Hour,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "relay",
			User:     "relay",
			MaxConns: 4,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			LogFile:     "app.log",
			MetricsPort: 9090,
		},
	}
}

// Validate reports settings the relay cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.Token == "" {
		errs = append(errs, errors.New("auth.token must be set"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute must be positive, got %d", c.RateLimit.RequestsPerMinute))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	switch c.RateLimit.Backend {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q is not one of memory, redis", c.RateLimit.Backend))
	}
	switch c.Completion.Type {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("completion.type %q is not one of gemini, openai", c.Completion.Type))
	}
	if c.Dispatch.Workers <= 0 || c.Dispatch.QueueSize <= 0 {
		errs = append(errs, errors.New("dispatch.workers and dispatch.queue_size must be positive"))
	}
	if _, err := c.Server.TrustedPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.Completion.MaxReplyChars <= 0 {
		errs = append(errs, errors.New("completion.max_reply_chars must be positive"))
	}
	return errors.Join(errs...)
}
