package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Reference string `json:"reference" binding:"required"`
	Note      string `json:"note" binding:"max=5"`
}

func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var req sample
		if err := c.ShouldBindJSON(&req); err != nil {
			BindError(c, err)
			return
		}
		c.JSON(http.StatusOK, MessageResponse{Message: "ok"})
	})
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBindError_ValidationDetails(t *testing.T) {
	w := post(bindRouter(), `{"note":"far too long"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var res ValidationErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "validation failed", res.Error)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "Reference is required", res.Details[0].Message)
	assert.Equal(t, "Note must be at most 5 characters", res.Details[1].Message)
}

func TestBindError_MalformedBody(t *testing.T) {
	w := post(bindRouter(), `{"reference":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestBindError_Valid(t *testing.T) {
	w := post(bindRouter(), `{"reference":"BK-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFieldErrors(t *testing.T) {
	type payload struct {
		Email string `validate:"required,email"`
		Age   int    `validate:"gte=3"`
	}
	err := validator.New().Struct(payload{Email: "nope", Age: 1})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	got := FieldErrors(verrs)

	require.Len(t, got, 2)
	assert.True(t, strings.HasSuffix(got[0].Message, "valid email address"))
	assert.Equal(t, "gte", got[1].Tag)
}
