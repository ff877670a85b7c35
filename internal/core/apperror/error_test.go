package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockDetails(t *testing.T) {
	err := NewInsufficientStock("unit-1", decimal.RequireFromString("7"), decimal.RequireFromString("5.5"))

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, "7", err.Details["requested"])
	assert.Equal(t, "5.5", err.Details["available"])
}

func TestCascadeFailureKeepsCause(t *testing.T) {
	cause := NewInsufficientStock("unit-1", decimal.NewFromInt(3), decimal.Zero)
	err := NewCascadeFailure("unit-1", cause)

	assert.Equal(t, CodeInsufficientStock, err.Details["cause_code"])
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsCode(err, CodeCascadeFailure))
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	date := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	wrapped := fmt.Errorf("validate: %w", NewPeriodClosed(date, "closed until 2025-01-31"))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodePeriodClosed, appErr.Code)
	assert.Equal(t, "2025-01-10", appErr.Details["effective_date"])
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}
