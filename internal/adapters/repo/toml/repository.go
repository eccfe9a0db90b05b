package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName       = "config"
	configType       = "toml"
	modelsPathKey    = "models.path"
	modelsFileMode   = 0o600
	modelsDirMode    = 0o700
	modelsConfigDir  = ".genrepl"
	modelsConfigFile = "models.toml"
	tempFilePattern  = ".models-*.toml.tmp"
)

// Repository stores model rate-limit profiles in a TOML file. A missing file
// reads as the published default profiles.
type Repository struct {
	modelsPath string
	mu         *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.ModelProfileRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, modelsConfigDir, modelsConfigFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, modelsConfigDir))
	cfg.SetDefault(modelsPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	modelsPath := cfg.GetString(modelsPathKey)
	if modelsPath == "" {
		return nil, errors.New("models path is empty")
	}
	modelsPath, err = normalizeModelsPath(modelsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{modelsPath: modelsPath, mu: lockForPath(modelsPath)}, nil
}

func (r *Repository) Save(ctx context.Context, profile domain.ModelProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	encoded := toSchema(profile)
	updated := false
	for i := range file.Models {
		if file.Models[i].Name == encoded.Name {
			file.Models[i] = encoded
			updated = true
			break
		}
	}

	if !updated {
		file.Models = append(file.Models, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetByName(ctx context.Context, name string) (domain.ModelProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.ModelProfile{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.ModelProfile{}, err
	}

	for _, entry := range file.Models {
		if entry.Name == name {
			return fromSchema(entry), nil
		}
	}

	for _, profile := range domain.DefaultModelProfiles() {
		if profile.Name == name {
			return profile, nil
		}
	}

	return domain.ModelProfile{}, domain.ErrModelNotFound
}

func (r *Repository) List(ctx context.Context) ([]domain.ModelProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	// Stored profiles override the defaults of the same name.
	byName := map[string]domain.ModelProfile{}
	order := []string{}
	for _, profile := range domain.DefaultModelProfiles() {
		byName[profile.Name] = profile
		order = append(order, profile.Name)
	}
	for _, entry := range file.Models {
		if _, ok := byName[entry.Name]; !ok {
			order = append(order, entry.Name)
		}
		byName[entry.Name] = fromSchema(entry)
	}

	profiles := make([]domain.ModelProfile, 0, len(order))
	for _, name := range order {
		profiles = append(profiles, byName[name])
	}

	return profiles, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.modelsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read models file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode models file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.modelsPath), modelsDirMode); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode models file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.modelsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp models file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp models file: %w", err)
	}

	if err := tempFile.Chmod(modelsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp models file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp models file: %w", err)
	}

	if err := os.Rename(tempName, r.modelsPath); err != nil {
		return fmt.Errorf("replace models file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.modelsPath, modelsFileMode); err != nil {
		return fmt.Errorf("chmod models file: %w", err)
	}

	return nil
}

func normalizeModelsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve models path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
