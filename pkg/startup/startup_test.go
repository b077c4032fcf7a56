package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_StartsInDependencyOrder(t *testing.T) {
	var started, stopped []string
	dep := func(name string, needs ...string) Func {
		return Func{
			Name:    name,
			Needs:   needs,
			OnStart: func(context.Context) error { started = append(started, name); return nil },
			OnStop:  func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := newTestStartup(1)
	s.AddDependency(dep("consumer", "database", "redis"))
	s.AddDependency(dep("database"))
	s.AddDependency(dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "redis", "consumer"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("consumer"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"consumer", "redis", "database"}, stopped)
}

func TestStartup_RetriesFailedDependency(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Func{Name: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Func{Name: "database", OnStart: func(context.Context) error { return errors.New("down") }})

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "startup failed after 2 attempts: down")
	assert.Equal(t, StartupStatusFailed, s.Status("database"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "consumer", Needs: []string{"kafka"}})

	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency 'kafka'")
}

func TestStartup_Cycle(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "a", Needs: []string{"b"}})
	s.AddDependency(Func{Name: "b", Needs: []string{"a"}})

	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}
