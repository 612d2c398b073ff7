package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsFuncsInReverseOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	sm := NewShutdownManager(log, 0)

	var order []string
	for _, name := range []string{"database", "scheduler", "tracing"} {
		name := name
		sm.RegisterShutdownFunc(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"tracing", "scheduler", "database"}, order)
}

func TestShutdownManager_DrainsServers(t *testing.T) {
	log, _ := test.NewNullLogger()
	sm := NewShutdownManager(log, 0)

	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts.Start()
	defer ts.Close()

	sm.AddServer(ts.Config)
	require.NoError(t, sm.Shutdown())

	_, err := http.Get(ts.URL)
	assert.Error(t, err)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	log, hook := test.NewNullLogger()
	sm := NewShutdownManager(log, 0)

	ran := false
	sm.RegisterShutdownFunc("database", func(context.Context) error {
		ran = true
		return nil
	})
	sm.RegisterShutdownFunc("tracing", func(context.Context) error {
		return errors.New("exporter unreachable")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing")
	assert.True(t, ran, "later failures must not skip earlier steps")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "shutdown step failed", hook.LastEntry().Message)
}

func TestShutdownManager_SecondCallIsNoop(t *testing.T) {
	log, _ := test.NewNullLogger()
	sm := NewShutdownManager(log, 0)

	calls := 0
	sm.RegisterShutdownFunc("counter", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, sm.Shutdown())
	require.NoError(t, sm.Shutdown())
	assert.Equal(t, 1, calls)
}
