package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newBrotliRouter(body gin.H) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli(DefaultBrotliConfig))
	r.GET("/sessions", func(c *gin.Context) { c.JSON(http.StatusOK, body) })
	return r
}

func largeBody() gin.H {
	rows := make([]string, 200)
	for i := range rows {
		rows[i] = "session-revoked-from-another-device"
	}
	return gin.H{"revocations": rows}
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	r := newBrotliRouter(largeBody())

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	require.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))

	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)

	var got struct {
		Revocations []string `json:"revocations"`
	}
	require.NoError(t, json.Unmarshal(plain, &got))
	require.Len(t, got.Revocations, 200)
}

func TestBrotliLeavesSmallBodiesPlain(t *testing.T) {
	r := newBrotliRouter(gin.H{"status": "ok"})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBrotliRespectsAcceptEncoding(t *testing.T) {
	r := newBrotliRouter(largeBody())

	for _, accept := range []string{"", "gzip", "br;q=0"} {
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		if accept != "" {
			req.Header.Set("Accept-Encoding", accept)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Empty(t, w.Header().Get("Content-Encoding"), accept)
		require.True(t, strings.HasPrefix(w.Body.String(), `{"revocations":[`), accept)
	}
}
