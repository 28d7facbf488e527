package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imei-sim/internal/imei"
	"imei-sim/internal/track"
)

func fixedNow() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

func TestParseConfig(t *testing.T) {
	t.Setenv("SECRET_KEY", "k")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c, err := parseConfig(fs, []string{"-imei", "490154203237518", "-day", "2024-01-02", "-json"})
	require.NoError(t, err)
	assert.Equal(t, "490154203237518", c.IMEI)
	assert.Equal(t, "2024-01-02", c.Day)
	assert.True(t, c.JSON)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = parseConfig(fs, nil)
	assert.Error(t, err)

	t.Setenv("SECRET_KEY", "")
	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	_, err = parseConfig(fs, []string{"-imei", "490154203237518"})
	assert.Error(t, err)
}

func TestRunTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run(previewConfig{IMEI: "490154203237518", Secret: "k"}, &buf, fixedNow))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "49015420********  2024-01-01"))
	assert.NotContains(t, out, "490154203237518")
	assert.Equal(t, 2+track.PointsPerTrack, strings.Count(out, "\n"))
}

func TestRunJSONDeterministic(t *testing.T) {
	c := previewConfig{IMEI: "490154203237518", Secret: "k", Day: "2024-01-01", JSON: true}
	var a, b bytes.Buffer
	require.NoError(t, run(c, &a, fixedNow))
	require.NoError(t, run(c, &b, time.Now))
	assert.Equal(t, a.String(), b.String())
	var m map[string]any
	require.NoError(t, json.Unmarshal(a.Bytes(), &m))
}

func TestRunRejectsInvalid(t *testing.T) {
	err := run(previewConfig{IMEI: "12345", Secret: "k"}, io.Discard, fixedNow)
	assert.ErrorIs(t, err, imei.ErrInvalidIdentifier)
	err = run(previewConfig{IMEI: "490154203237518", Secret: "k", Day: "2024-13-01"}, io.Discard, fixedNow)
	assert.Error(t, err)
}
