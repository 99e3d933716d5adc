package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedCode    string
		expectedMessage string
	}{
		{
			name:            "invalid input",
			err:             &services.OrderError{Code: services.CodeInvalidInput, Message: "district is required"},
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    "INVALID_INPUT",
			expectedMessage: "district is required",
		},
		{
			name:           "wrapped conflict",
			err:            fmt.Errorf("saving: %w", &services.OrderError{Code: services.CodeConflict, ID: "o-1", Message: "modified"}),
			expectedStatus: http.StatusConflict,
			expectedCode:   "CONFLICT",
		},
		{
			name:           "timeout",
			err:            &services.OrderError{Code: services.CodeTimeout, Message: "took too long"},
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   "TIMEOUT",
		},
		{
			name:            "store error hides detail",
			err:             &services.OrderError{Code: services.CodeStoreError, Message: "pq: connection refused"},
			expectedStatus:  http.StatusInternalServerError,
			expectedCode:    "STORE_ERROR",
			expectedMessage: "Internal server error",
		},
		{
			name:           "plain error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:            "upload error",
			err:             &utils.FileUploadError{Code: "FILE_TOO_LARGE", Message: "too big"},
			expectedStatus:  http.StatusBadRequest,
			expectedCode:    "FILE_TOO_LARGE",
			expectedMessage: "too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, false, response["success"])
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(response))
			}
			if tt.expectedMessage != "" {
				assert.Equal(t, tt.expectedMessage, response["error"].(map[string]interface{})["message"])
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.True(t, isZero(d))

	d, err = parseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, gin.H{"date": "2024-02-29", "was_adjusted": false}, placementView(services.Placement{Date: d}))

	_, err = parseDate("2024-02-30")
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}
