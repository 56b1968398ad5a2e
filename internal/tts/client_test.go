package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anqingli/tingshu/internal/domain"
	"github.com/anqingli/tingshu/internal/infra/config"
	"github.com/anqingli/tingshu/internal/infra/logger"
)

func testClient(t *testing.T, apiURL string) *Client {
	t.Helper()

	speaker := filepath.Join(t.TempDir(), "speaker.wav")
	require.NoError(t, os.WriteFile(speaker, []byte("RIFFfake"), 0644))

	log, err := logger.New("", logger.LevelError)
	require.NoError(t, err)

	c, err := NewClient(config.TTSConfig{
		APIURL:           apiURL,
		APIKey:           "secret-key",
		SpeakerAudioPath: speaker,
		PollAttempts:     3,
		PollInterval:     0,
	}, log)
	require.NoError(t, err)
	return c
}

func TestSynthesize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts/synthesize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "第一章内容", r.FormValue("text"))
		assert.Equal(t, "0.8", r.FormValue("top_p"))
		assert.Equal(t, "30", r.FormValue("top_k"))
		assert.Equal(t, "true", r.FormValue("do_sample"))
		assert.Equal(t, "10", r.FormValue("repetition_penalty"))

		_, header, err := r.FormFile("speaker_audio")
		require.NoError(t, err)
		assert.Equal(t, "speaker.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"mp3_url": "/api/tts/output/1.mp3", "duration": 95}`))
	})
	mux.HandleFunc("/api/tts/output/1.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3mp3bytes"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/api/tts/synthesize")

	result, err := c.Synthesize(context.Background(), "第一章内容")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3bytes"), result.Audio)
	require.NotNil(t, result.Duration)
	assert.Equal(t, 95, *result.Duration)
}

func TestSynthesizePollsUntilReady(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mp3_url": "out.mp3"}`))
	})
	mux.HandleFunc("/out.mp3", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Write([]byte("mp3"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/synthesize")

	result, err := c.Synthesize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), result.Audio)
	assert.Equal(t, int32(3), polls.Load())
	assert.Nil(t, result.Duration)
}

func TestSynthesizeMP3NeverReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mp3_url": "out.mp3"}`))
	})
	mux.HandleFunc("/out.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/synthesize")

	_, err := c.Synthesize(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrMP3NotReady)
}

func TestSynthesizeMissingMP3URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	_, err := c.Synthesize(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrMissingMP3URL)
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	_, err := c.Synthesize(context.Background(), "text")
	assert.ErrorContains(t, err, "status 500")
}

func TestLoadParamsProfileOverride(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("temperature: 0.5\ntop_k: 50\n"), 0644))

	params, err := LoadParams(profile)
	require.NoError(t, err)

	assert.Equal(t, 0.5, params.Temperature)
	assert.Equal(t, 50, params.TopK)
	// untouched fields keep defaults
	assert.Equal(t, 0.8, params.TopP)
	assert.Equal(t, 3, params.NumBeams)
}
