package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	configadapter "codex-account-manager/internal/adapters/config"
	"codex-account-manager/internal/adapters/credfile"
	oauthadapter "codex-account-manager/internal/adapters/oauth"
	"codex-account-manager/internal/adapters/shell"
	"codex-account-manager/internal/adapters/storejson"
	usageadapter "codex-account-manager/internal/adapters/usage"
	"codex-account-manager/internal/application"
	"codex-account-manager/internal/bridge"
	"codex-account-manager/internal/ports"
)

type app struct {
	accounts *application.AccountService
	login    *application.LoginService
	usage    *application.UsageService
	policy   *application.PolicyService
	bridge   *bridge.Bridge
	state    ports.StateRepository
	logger   zerolog.Logger
	now      func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := configadapter.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	clock := ports.SystemClock{}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	repo, err := storejson.NewRepository(cfg.Storage.AccountsPath, cfg.Storage.StatePath, clock)
	if err != nil {
		return nil, fmt.Errorf("wire store repository: %w", err)
	}

	credential, err := credfile.NewFile(cfg.Storage.CredentialPath)
	if err != nil {
		return nil, fmt.Errorf("wire credential file: %w", err)
	}

	listener := oauthadapter.NewListener(cfg.Auth.ListenAddr)
	opener := shell.Opener{}

	accounts := application.NewAccountService(repo, credential, clock, logger)
	login := application.NewLoginService(accounts, listener, opener, httpClient, clock, logger, application.LoginConfig{
		Issuer:          cfg.Auth.Issuer,
		ClientID:        cfg.Auth.ClientID,
		RedirectURI:     listener.RedirectURI(),
		ListenerTimeout: cfg.Auth.ListenerTimeout(),
	})
	fetcher := usageadapter.NewClient(httpClient, cfg.Usage.BaseURL, clock, logger)
	usage := application.NewUsageService(accounts, fetcher, repo, credential, logger)
	policy := application.NewPolicyService(accounts, usage, repo, logger)

	return &app{
		accounts: accounts,
		login:    login,
		usage:    usage,
		policy:   policy,
		bridge:   bridge.New(accounts, login, usage, policy, repo, opener, logger),
		state:    repo,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(parsed).
		With().
		Timestamp().
		Logger()
}
