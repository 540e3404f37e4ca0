package render

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sightline/pkg/geo"
)

var (
	start = geo.Point3D{X: 0, Y: 0, Z: 100}
	split = geo.Point3D{X: 500, Y: 0, Z: 0}
	end   = geo.Point3D{X: 1000, Y: 0, Z: 100}
)

func TestStyle(t *testing.T) {
	assert.Equal(t, "visible", StyleVisible.String())
	assert.Equal(t, "obstructed", StyleObstructed.String())
	assert.Equal(t, "unknown", Style(42).String())
	assert.Equal(t, "#00ff00", StyleVisible.Color())
	assert.Equal(t, "#ff0000", StyleObstructed.Color())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	pts := []geo.Point3D{start, end}
	r.Draw(Polyline{Points: pts, Style: StyleVisible})

	// Mutating the caller's slice must not leak into the recording.
	pts[0].X = 999

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, start, lines[0].Points[0])

	lines[0].Points[1].X = -1
	assert.Equal(t, end, r.Lines()[0].Points[1])

	r.Reset()
	assert.Empty(t, r.Lines())
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	var calls int
	s := Multi(&a, nil, &b, SinkFunc(func(Polyline) { calls++ }))

	s.Draw(Polyline{Points: []geo.Point3D{start, split}, Style: StyleVisible})
	s.Draw(Polyline{Points: []geo.Point3D{split, end}, Style: StyleObstructed})

	assert.Len(t, a.Lines(), 2)
	assert.Len(t, b.Lines(), 2)
	assert.Equal(t, 2, calls)
}

func TestLogSink_NilLogger(t *testing.T) {
	// Falls back to slog.Default without panicking.
	LogSink{}.Draw(Polyline{Points: []geo.Point3D{start, end}})
	LogSink{}.Draw(Polyline{})
}

func TestFeature(t *testing.T) {
	f := Feature(Polyline{Points: []geo.Point3D{split, end}, Style: StyleObstructed})

	ls, ok := f.Geometry.(orb.LineString)
	require.True(t, ok, "geometry should be a LineString, got %T", f.Geometry)
	assert.Equal(t, orb.LineString{{500, 0}, {1000, 0}}, ls)
	assert.Equal(t, "obstructed", f.Properties["style"])
	assert.Equal(t, "#ff0000", f.Properties["stroke"])
	assert.Equal(t, []float64{0, 100}, f.Properties["z"])
}

func TestGeoJSONSink(t *testing.T) {
	s := NewGeoJSONSink()
	s.Draw(Polyline{Points: []geo.Point3D{start, split}, Style: StyleVisible})
	s.Draw(Polyline{Points: []geo.Point3D{split, end}, Style: StyleObstructed})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "visible", fc.Features[0].Properties.MustString("style"))
	assert.Equal(t, "obstructed", fc.Features[1].Properties.MustString("style"))
	assert.Len(t, s.FeatureCollection().Features, 2)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Draw(Polyline{Points: []geo.Point3D{start, end}, Style: StyleVisible})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	f, err := geojson.UnmarshalFeature(msg)
	require.NoError(t, err)
	assert.Equal(t, "visible", f.Properties.MustString("style"))

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsAfterClose(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Clients())

	// Drawing with no clients is a no-op.
	hub.Draw(Polyline{Points: []geo.Point3D{start, end}})
}
