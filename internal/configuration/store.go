package configuration

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
	"github.com/perfreporter/perfreporter/internal/timeutil"
)

const (
	storeTTL             = 5 * time.Minute
	storeCleanupInterval = 10 * time.Minute
)

// Store resolves integrations into SourceConfigs. Resolved configs are cached so that repeated
// engine construction does not re-read secrets.
type Store struct {
	config  Config
	secrets SecretProvider
	cache   *cache.Cache
}

func NewStore(config Config, secrets SecretProvider) *Store {
	return &Store{
		config:  config,
		secrets: secrets,
		cache:   cache.New(storeTTL, storeCleanupInterval),
	}
}

// Resolve returns the integration id of project, or the project's default integration when id is
// empty.
func (s *Store) Resolve(project, id string) (SourceConfig, error) {
	key := project + "/" + id
	if cached, ok := s.cache.Get(key); ok {
		return cached.(SourceConfig), nil
	}
	integration, err := s.find(project, id)
	if err != nil {
		return SourceConfig{}, err
	}
	credential, err := Resolve(s.secrets, integration.TokenOrPassword)
	if err != nil {
		return SourceConfig{}, errors.WithMessagef(err, "resolving credential of integration %s", integration.ID)
	}
	loc, err := timeutil.LoadLocation(integration.Tmz)
	if err != nil {
		return SourceConfig{}, errors.WithMessagef(err, "integration %s", integration.ID)
	}
	resolved := SourceConfig{
		IntegrationConfig: integration,
		Credential:        credential,
		Location:          loc,
		BatchSize:         s.config.Insertion.BatchSize,
		AggregationWindow: s.config.Insertion.DefaultAggregationWindow,
		QueryWindow:       s.config.Query.Window,
	}
	s.cache.SetDefault(key, resolved)
	return resolved, nil
}

func (s *Store) find(project, id string) (IntegrationConfig, error) {
	for _, integration := range s.config.Integrations {
		if integration.Project != project {
			continue
		}
		if (id == "" && integration.Default) || (id != "" && integration.ID == id) {
			return integration, nil
		}
	}
	if id == "" {
		return IntegrationConfig{}, errors.WithStack(&perferrors.ErrNotFound{Type: "integration", Value: project, Message: "project has no default integration"})
	}
	return IntegrationConfig{}, errors.WithStack(&perferrors.ErrNotFound{Type: "integration", Value: id, Message: "in project " + project})
}

// Integrations lists the integrations of project.
func (s *Store) Integrations(project string) []IntegrationConfig {
	var out []IntegrationConfig
	for _, integration := range s.config.Integrations {
		if integration.Project == project {
			out = append(out, integration)
		}
	}
	return out
}

// Invalidate drops every cached resolution.
func (s *Store) Invalidate() {
	s.cache.Flush()
}
