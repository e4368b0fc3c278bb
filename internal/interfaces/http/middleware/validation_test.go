package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindBatch(t *testing.T, body string) (int, dto.Response) {
	t.Helper()
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/plan", func(c *gin.Context) {
		var req dto.PlanBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/plan", strings.NewReader(body)))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func detailFor(resp dto.Response, field string) (dto.ValidationDetail, bool) {
	for _, d := range resp.Error.Details {
		if d.Field == field {
			return d, true
		}
	}
	return dto.ValidationDetail{}, false
}

func TestValidation(t *testing.T) {
	t.Run("accepts a valid batch", func(t *testing.T) {
		code, resp := bindBatch(t, `{
			"reports": [{"property_id": "P1", "year": 2024, "month": 3, "total_income": "100"}],
			"ownership": [{"property_id": "P1", "investor_id": "A", "percentage": 100}]
		}`)

		assert.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Success)
	})

	t.Run("requires reports", func(t *testing.T) {
		code, resp := bindBatch(t, `{"reports": []}`)

		assert.Equal(t, http.StatusBadRequest, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
		d, ok := detailFor(resp, "reports")
		require.True(t, ok)
		assert.Equal(t, "Must contain at least 1 item(s)", d.Message)
	})

	t.Run("reports nested fields with JSON names", func(t *testing.T) {
		_, resp := bindBatch(t, `{"reports": [{"property_id": "P1", "year": 2024, "month": 13}]}`)

		d, ok := detailFor(resp, "reports[0].month")
		require.True(t, ok)
		assert.Equal(t, "Must be less than or equal to 12", d.Message)
	})

	t.Run("external party cannot own a share", func(t *testing.T) {
		_, resp := bindBatch(t, `{
			"reports": [{"property_id": "P1", "year": 2024, "month": 3}],
			"ownership": [{"property_id": "P1", "investor_id": "external", "percentage": "100"}]
		}`)

		d, ok := detailFor(resp, "ownership[0].investor_id")
		require.True(t, ok)
		assert.Equal(t, "Must name an investor", d.Message)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		code, resp := bindBatch(t, `{"reports": [`)

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	})
}
