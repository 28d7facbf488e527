package osrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imei-sim/internal/geo"
)

func TestNearest(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","waypoints":[{"location":[13.3889,52.5170],"distance":4.2,"name":"Friedrichstr"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	p, err := c.Nearest(context.Background(), geo.Point{Lat: 52.5, Lon: 13.4})
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 52.5170, Lon: 13.3889}, p)
	assert.True(t, strings.HasPrefix(gotPath, "/nearest/v1/driving/13.400000,52.500000"))
}

func TestNearestFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"code": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"InvalidQuery","message":"bad"}`))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":"Ok","waypoints":[]}`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{`)) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			in := geo.Point{Lat: 1, Lon: 2}
			out, err := NewClient(srv.URL, srv.Client()).Nearest(context.Background(), in)
			assert.Error(t, err)
			assert.Equal(t, in, out)
		})
	}
}
