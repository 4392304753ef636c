package position_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/pkg/geo"
)

func TestReplay_EmitsResampledRoute(t *testing.T) {
	route := []geo.Point{{Lat: 0, Lon: 0}, {Lat: 0.001798, Lon: 0}} // ~200 m
	replay, err := position.NewReplay(position.ReplayConfig{
		Route:      route,
		StepMeters: 50,
		Interval:   time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, replay.Len())

	sub, err := replay.Subscribe(context.Background(), position.Options{})
	require.NoError(t, err)
	defer sub.Close()

	var got []geo.Point
	for i := 0; i < replay.Len(); i++ {
		u := receive(t, sub)
		require.NoError(t, u.Err)
		got = append(got, u.Fix.Point)
	}

	assert.Equal(t, route[0], got[0])
	assert.Equal(t, route[1], got[len(got)-1])
	assert.InDelta(t, 200, geo.PathLength(got), 1)
}

func TestReplay_FromPolyline(t *testing.T) {
	replay, err := position.NewReplayFromPolyline("_p~iF~ps|U_ulLnnqC", position.ReplayConfig{StepMeters: 100000})
	require.NoError(t, err)
	assert.Greater(t, replay.Len(), 2)

	_, err = position.NewReplayFromPolyline("", position.ReplayConfig{})
	assert.Error(t, err)
}

func TestDecodeFixMessage(t *testing.T) {
	fix, err := position.DecodeFixMessage([]byte(`{"lat":52.37,"lon":4.9,"timestamp":"2026-04-12T07:30:00Z","accuracy":4.5}`))
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 52.37, Lon: 4.9}, fix.Point)
	assert.Equal(t, time.Date(2026, 4, 12, 7, 30, 0, 0, time.UTC), fix.Timestamp)
	assert.Equal(t, 4.5, fix.AccuracyMeters)

	_, err = position.DecodeFixMessage([]byte(`{"lat":`))
	assert.ErrorIs(t, err, position.ErrInvalidFix)

	_, err = position.DecodeFixMessage([]byte(`{"lat":95,"lon":0}`))
	assert.ErrorIs(t, err, position.ErrInvalidFix)
}
