package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	tomlrepo "github.com/brelli/genrepl/internal/adapters/repo/toml"
	"github.com/brelli/genrepl/internal/application"
	"github.com/brelli/genrepl/internal/paths"
	"github.com/brelli/genrepl/internal/ports"
	"github.com/spf13/viper"
)

const (
	defaultModel      = "gemini-2.0-flash-lite"
	defaultAPIKeyEnv  = "GEMINI_API_KEY"
	defaultTTLMinutes = 15
	defaultMaxTokens  = 100_000
	defaultSystemText = "You are a helpful assistant with sandboxed access to the user's workspace files."
)

type app struct {
	project    paths.Project
	workDir    string
	modelRepo  ports.ModelProfileRepository
	registry   *application.AdmissionRegistry
	config     *viper.Viper
	httpClient *http.Client
	now        func() time.Time
}

func wireApp() (*app, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	project, err := paths.ForWorkingDir(workDir)
	if err != nil {
		return nil, fmt.Errorf("wire project paths: %w", err)
	}

	modelRepo, err := tomlrepo.NewRepository(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire model repository: %w", err)
	}

	config := viper.New()
	config.SetDefault("chat.model", envOrDefault("GENREPL_MODEL", defaultModel))
	config.SetDefault("chat.system_prompt", defaultSystemText)
	config.SetDefault("chat.max_context_tokens", defaultMaxTokens)
	config.SetDefault("cache.ttl_minutes", defaultTTLMinutes)
	config.SetDefault("api.base_url", envOrDefault("GENREPL_API_BASE_URL", ""))
	config.SetDefault("api.key", os.Getenv(defaultAPIKeyEnv))

	return &app{
		project:    project,
		workDir:    workDir,
		modelRepo:  modelRepo,
		registry:   application.NewAdmissionRegistry(modelRepo, ports.SystemClock{}),
		config:     config,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (a *app) modelName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.config.GetString("chat.model")
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
