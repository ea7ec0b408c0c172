package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
)

func TestRespondServiceErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("row: %w", pkgerrors.ErrNotFound), http.StatusNotFound},
		{"invalid argument", fmt.Errorf("bad input: %w", pkgerrors.ErrInvalidArgument), http.StatusBadRequest},
		{"duplicate", fmt.Errorf("fingerprint: %w", pkgerrors.ErrDuplicate), http.StatusConflict},
		{"conflict", fmt.Errorf("transition: %w", pkgerrors.ErrConflict), http.StatusConflict},
		{"unknown", errors.New("database exploded"), http.StatusInternalServerError},
	}

	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			RespondServiceError(c, "test_code", tc.err)

			if rec.Code != tc.want {
				t.Fatalf("status: want=%d got=%d", tc.want, rec.Code)
			}
		})
	}
}

func TestRespondErrorEnvelopeShape(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondError(c, http.StatusBadRequest, "invalid_thing", errors.New("thing was invalid"))

	want := `{"error":{"message":"thing was invalid","code":"invalid_thing"}}`
	if rec.Body.String() != want {
		t.Fatalf("body: want=%s got=%s", want, rec.Body.String())
	}
}
