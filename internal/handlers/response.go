package handlers

import (
  "errors"
  "net/http"

  "github.com/gin-gonic/gin"

  pkgerrors "github.com/moveatlas/moveatlas-backend/internal/pkg/errors"
)

type APIError struct {
  Message string `json:"message"`
  Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the shared sentinel errors onto HTTP statuses
// so every handler reports a missing row as 404 and a violated uniqueness
// or transition guard as 409 without repeating the errors.Is ladder.
func RespondServiceError(c *gin.Context, code string, err error) {
  status := http.StatusInternalServerError
  switch {
  case errors.Is(err, pkgerrors.ErrNotFound):
    status = http.StatusNotFound
  case errors.Is(err, pkgerrors.ErrInvalidArgument):
    status = http.StatusBadRequest
  case errors.Is(err, pkgerrors.ErrDuplicate), errors.Is(err, pkgerrors.ErrConflict):
    status = http.StatusConflict
  }
  RespondError(c, status, code, err)
}
