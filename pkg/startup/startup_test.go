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

type recorder struct {
	events []string
}

type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int
	stopErr   error
	rec       *recorder
}

func (d *fakeDependency) GetName() string     { return d.name }
func (d *fakeDependency) DependsOn() []string { return d.dependsOn }

func (d *fakeDependency) Start(context.Context) error {
	if d.failures > 0 {
		d.failures--
		return errors.New(d.name + " unavailable")
	}
	d.rec.events = append(d.rec.events, "start:"+d.name)
	return nil
}

func (d *fakeDependency) Stop(context.Context) error {
	d.rec.events = append(d.rec.events, "stop:"+d.name)
	return d.stopErr
}

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.backoffUnit = time.Millisecond
	return s
}

func TestStartup_StartsDependenciesFirst(t *testing.T) {
	rec := &recorder{}
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "scheduler", dependsOn: []string{"postgres", "redis"}, rec: rec})
	s.AddDependency(&fakeDependency{name: "postgres", rec: rec})
	s.AddDependency(&fakeDependency{name: "redis", rec: rec})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:postgres", "start:redis", "start:scheduler"}, rec.events)
	assert.Equal(t, StatusStarted, s.Status("scheduler"))

	rec.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, "stop:scheduler", rec.events[0])
	assert.ElementsMatch(t, []string{"stop:scheduler", "stop:postgres", "stop:redis"}, rec.events)
}

func TestStartup_RetriesFailedDependencies(t *testing.T) {
	rec := &recorder{}
	s := newTestStartup(3)
	s.AddDependency(&fakeDependency{name: "postgres", rec: rec})
	s.AddDependency(&fakeDependency{name: "kafka", failures: 2, rec: rec})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:postgres", "start:kafka"}, rec.events)
}

func TestStartup_GivesUp(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(&fakeDependency{name: "neo4j", failures: 5, rec: &recorder{}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neo4j unavailable")
	assert.Equal(t, StatusFailed, s.Status("neo4j"))
}

func TestStartup_DetectsCycles(t *testing.T) {
	rec := &recorder{}
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "a", dependsOn: []string{"b"}, rec: rec})
	s.AddDependency(&fakeDependency{name: "b", dependsOn: []string{"a"}, rec: rec})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestStartup_StopReportsFirstError(t *testing.T) {
	rec := &recorder{}
	s := newTestStartup(1)
	s.AddDependency(&fakeDependency{name: "postgres", stopErr: errors.New("close failed"), rec: rec})
	s.AddDependency(&fakeDependency{name: "redis", rec: rec})
	require.NoError(t, s.Start(context.Background()))

	err := s.Stop(context.Background())
	assert.EqualError(t, err, "close failed")
	assert.Equal(t, StatusStopped, s.Status("redis"))
}
