package transcript

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/depobot/internal/apperrors"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token recall-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/ok":
			_, _ = io.WriteString(w, sampleTranscript)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "not found")
		default:
			_, _ = io.WriteString(w, "<html>")
		}
	}))
	t.Cleanup(srv.Close)

	d := NewDownloader("recall-key", srv.Client())

	raw, err := d.Download(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	require.Len(t, raw.Participants, 2)
	assert.Equal(t, "Witness", raw.Participants[1].Participant.Name)

	data, err := raw.Bytes()
	require.NoError(t, err)
	assert.Equal(t, sampleTranscript, string(data))

	_, err = d.Download(context.Background(), srv.URL+"/missing")
	var upstream *apperrors.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "transcript", upstream.Service)
	assert.Equal(t, http.StatusNotFound, upstream.Status)

	_, err = d.Download(context.Background(), srv.URL+"/garbage")
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusOK, upstream.Status)
}

func TestDownloadRequiresURL(t *testing.T) {
	_, err := NewDownloader("k", nil).Download(context.Background(), "")
	assert.True(t, apperrors.IsInvalidArgument(err))
}
