// Package payiproxy is the billing proxy service. It forwards Anthropic calls,
// through Pay-i when a key is configured, and attributes every call to a use case.
package payiproxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/utils"
)

const (
	defaultModel       = "claude-sonnet-4-20250514"
	defaultMaxTokens   = 2048
	webSearchMaxUses   = 10
	trailFinderUseCase = "trail_finder"
	maxBodyBytes       = 200 << 20
)

// Pay-i attribution headers
const (
	headerAPIKey            = "xProxy-api-key"
	headerUseCaseName       = "xProxy-UseCase-Name"
	headerUseCaseID         = "xProxy-UseCase-ID"
	headerUseCaseVersion    = "xProxy-UseCase-Version"
	headerUseCaseProperties = "xProxy-UseCase-Properties"
	headerRequestProperties = "xProxy-Request-Properties"
	headerUserID            = "xProxy-User-ID"
	headerAccountName       = "xProxy-Account-Name"
	headerLimitIDs          = "xProxy-Limit-IDs"
	headerRequestID         = "xProxy-Request-ID"
)

// Settings configure the proxy service.
type Settings struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string // direct calls only; tests point it at a fake
	PayIAPIKey       string
	PayIBaseURL      string
	PayIProxyPath    string
	ServiceName      string
	Environment      string
	DefaultUseCase   string
	UseCaseVersion   int
	RequestTimeout   time.Duration
}

// SettingsFrom maps the loaded configuration onto Settings.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		AnthropicAPIKey:  cfg.Provider.AnthropicAPIKey,
		AnthropicBaseURL: cfg.Provider.AnthropicBaseURL,
		PayIAPIKey:       cfg.PayI.APIKey,
		PayIBaseURL:      cfg.PayI.BaseURL,
		PayIProxyPath:    cfg.PayI.ProxyPath,
		ServiceName:      cfg.PayI.ServiceName,
		Environment:      cfg.PayI.Environment,
		DefaultUseCase:   cfg.PayI.DefaultUseCase,
		UseCaseVersion:   cfg.PayI.UseCaseVersion,
		RequestTimeout:   cfg.Provider.RequestTimeout,
	}
}

// PayIEnabled reports whether upstream calls are routed through Pay-i.
func (s Settings) PayIEnabled() bool {
	return s.PayIAPIKey != "" && s.PayIBaseURL != ""
}

func (s Settings) upstreamBaseURL() string {
	if s.PayIEnabled() {
		return strings.TrimRight(s.PayIBaseURL, "/") + "/" + strings.Trim(s.PayIProxyPath, "/") + "/"
	}
	return s.AnthropicBaseURL
}

// Server handles the proxy endpoints.
type Server struct {
	settings Settings
	client   *sdk.Client // nil without an Anthropic key
	prices   *billing.PriceTable
	logger   *utils.Logger
	newID    func() string
}

// NewServer creates the proxy. A nil price table uses the defaults.
func NewServer(settings Settings, prices *billing.PriceTable) *Server {
	if settings.ServiceName == "" {
		settings.ServiceName = "trailblazer-payi-proxy"
	}
	if settings.DefaultUseCase == "" {
		settings.DefaultUseCase = models.UseCaseTrailAnalysis
	}
	if prices == nil {
		prices = billing.NewPriceTable(nil)
	}

	s := &Server{
		settings: settings,
		prices:   prices,
		logger:   utils.NewLogger("payi-proxy"),
		newID:    func() string { return uuid.NewString() },
	}

	if settings.AnthropicAPIKey == "" {
		s.logger.Warn("Anthropic API key not configured")
		return s
	}
	opts := []option.RequestOption{
		option.WithAPIKey(settings.AnthropicAPIKey),
		option.WithMaxRetries(0),
	}
	if base := settings.upstreamBaseURL(); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if settings.PayIEnabled() {
		opts = append(opts, option.WithHeader(headerAPIKey, settings.PayIAPIKey))
		s.logger.Info("Pay-i instrumentation enabled", "base_url", settings.PayIBaseURL)
	} else {
		s.logger.Warn("Pay-i not configured, calling Anthropic directly")
	}
	if settings.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(settings.RequestTimeout))
	}
	client := sdk.NewClient(opts...)
	s.client = &client
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/trail-finder", s.handleTrailFinder)
	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	PayIEnabled      bool   `json:"payi_enabled"`
	AnthropicEnabled bool   `json:"anthropic_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		Service:          s.settings.ServiceName,
		PayIEnabled:      s.settings.PayIAPIKey != "",
		AnthropicEnabled: s.settings.AnthropicAPIKey != "",
	})
}

// useCase is one attributed unit of work.
type useCase struct {
	Name         string
	ID           string
	Version      int
	UserID       string
	AccountName  string
	LimitIDs     []string
	Properties   map[string]string
	RequestProps map[string]string
}

func (s *Server) newUseCase(name string, version int, userID, account string, limits []string) useCase {
	if version == 0 {
		version = s.settings.UseCaseVersion
	}
	return useCase{
		Name:        name,
		ID:          s.newID(),
		Version:     version,
		UserID:      userID,
		AccountName: account,
		LimitIDs:    limits,
	}
}

// headers renders the attribution headers. Only sent when Pay-i is on.
func (s *Server) headers(uc useCase) []option.RequestOption {
	if !s.settings.PayIEnabled() {
		return nil
	}
	opts := []option.RequestOption{
		option.WithHeader(headerUseCaseName, uc.Name),
		option.WithHeader(headerUseCaseID, uc.ID),
	}
	if uc.Version > 0 {
		opts = append(opts, option.WithHeader(headerUseCaseVersion, strconv.Itoa(uc.Version)))
	}
	if uc.UserID != "" {
		opts = append(opts, option.WithHeader(headerUserID, uc.UserID))
	}
	if uc.AccountName != "" {
		opts = append(opts, option.WithHeader(headerAccountName, uc.AccountName))
	}
	if len(uc.LimitIDs) > 0 {
		opts = append(opts, option.WithHeader(headerLimitIDs, strings.Join(uc.LimitIDs, ",")))
	}
	props := map[string]string{
		"app":         "trailblazer_ai",
		"service":     s.settings.ServiceName,
		"environment": s.settings.Environment,
	}
	for k, v := range uc.Properties {
		props[k] = v
	}
	if b, err := json.Marshal(props); err == nil {
		opts = append(opts, option.WithHeader(headerUseCaseProperties, string(b)))
	}
	if len(uc.RequestProps) > 0 {
		if b, err := json.Marshal(uc.RequestProps); err == nil {
			opts = append(opts, option.WithHeader(headerRequestProperties, string(b)))
		}
	}
	return opts
}

// completion is the outcome of one upstream call.
type completion struct {
	Text          string
	Model         string
	Usage         providers.ProxyUsage
	PayIRequestID string
}

func (s *Server) call(ctx context.Context, params sdk.MessageNewParams, uc useCase) (*completion, error) {
	if s.client == nil {
		return nil, errAnthropicMissing
	}

	var raw *http.Response
	opts := append(s.headers(uc), option.WithResponseInto(&raw))
	msg, err := s.client.Messages.New(ctx, params, opts...)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := &completion{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: s.usage(string(params.Model), msg.Usage.InputTokens, msg.Usage.OutputTokens),
	}
	if out.Model == "" {
		out.Model = string(params.Model)
	}
	if raw != nil {
		out.PayIRequestID = raw.Header.Get(headerRequestID)
	}
	return out, nil
}

// usage fills costs from the price table. Unknown models carry tokens only.
func (s *Server) usage(model string, in, out int64) providers.ProxyUsage {
	u := providers.ProxyUsage{InputTokens: in, OutputTokens: out}
	price, ok := s.prices.Lookup(model)
	if !ok {
		return u
	}
	inCost, _ := price.Cost(in, 0).Float64()
	outCost, _ := price.Cost(0, out).Float64()
	total, _ := price.Cost(in, out).Float64()
	u.InputCost, u.OutputCost, u.Cost = &inCost, &outCost, &total
	return u
}

var errAnthropicMissing = errors.New("anthropic client not initialized")

// writeError maps upstream failures: Anthropic API errors keep their status,
// a missing key is 503, anything else is 500.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	var apiErr *sdk.Error
	switch {
	case errors.Is(err, errAnthropicMissing):
		status = http.StatusServiceUnavailable
	case errors.As(err, &apiErr) && apiErr.StatusCode > 0:
		status = apiErr.StatusCode
		if apiErr.Response != nil {
			if ra := apiErr.Response.Header.Get("Retry-After"); ra != "" {
				w.Header().Set("Retry-After", ra)
			}
		}
	}
	s.logger.Error(op+" failed", "status", status, "error", err)
	utils.RespondWithJSON(w, status, map[string]string{"detail": err.Error()})
}
