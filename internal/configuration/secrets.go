package configuration

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

const secretPrefix = "secret:"

// SecretProvider resolves secret names to values.
type SecretProvider interface {
	Get(name string) (string, error)
}

// JSONSecrets is a SecretProvider backed by a JSON object read from a file. Non-string values are
// returned as their JSON encoding.
type JSONSecrets struct {
	mu    sync.RWMutex
	store map[string]interface{}
}

func NewJSONSecrets(path string) (*JSONSecrets, error) {
	store := map[string]interface{}{}
	if path == "" {
		return &JSONSecrets{store: store}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading secret file %s", path)
	}
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, errors.Wrapf(err, "parsing secret file %s", path)
	}
	return &JSONSecrets{store: store}, nil
}

func (j *JSONSecrets) Get(name string) (string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	val, ok := j.store[name]
	if !ok {
		return "", errors.WithStack(&perferrors.ErrNotFound{Type: "secret", Value: name})
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return "", errors.Wrapf(err, "encoding secret %s", name)
	}
	return string(data), nil
}

// Resolve returns value, or the named secret when value is a "secret:<name>" reference.
func Resolve(provider SecretProvider, value string) (string, error) {
	if !strings.HasPrefix(value, secretPrefix) {
		return value, nil
	}
	return provider.Get(strings.TrimPrefix(value, secretPrefix))
}
