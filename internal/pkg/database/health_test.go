package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pasale/pasale-api/internal/pkg/lock"
)

func TestHealthWithoutBackends(t *testing.T) {
	status, healthy := Health(context.Background(), nil, nil)
	assert.True(t, healthy)
	assert.Equal(t, map[string]string{"postgres": "disabled", "redis": "disabled"}, status)
}

func TestNewLockerFallsBackToProcessLocks(t *testing.T) {
	l := NewLocker(nil, 0, 0)
	assert.IsType(t, &lock.KeyedMutex{}, l)
}
