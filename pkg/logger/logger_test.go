package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFromFallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
	l := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestForCallAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	ForCall(l, "CA1", "", "t1").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line["call_sid"] != "CA1" || line["tenant_id"] != "t1" {
		t.Fatalf("unexpected attrs: %v", line)
	}
	if _, ok := line["stream_sid"]; ok {
		t.Fatalf("empty stream_sid should be omitted")
	}
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/x", func(c *gin.Context) {
		if From(c.Request.Context()) == slog.Default() {
			t.Errorf("expected request logger in context")
		}
		c.Status(200)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"path":"/x"`)) {
		t.Fatalf("expected request summary, got %s", buf.String())
	}
}
