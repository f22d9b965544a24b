package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, util.Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/test", nil)

	respondError(ctx, err)

	var body util.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{util.ErrSignatureInvalid, http.StatusBadRequest},
		{fmt.Errorf("%w: order id mismatch", util.ErrPaymentMismatch), http.StatusBadRequest},
		{util.ErrCourseNotFound, http.StatusNotFound},
		{util.ErrStudentNotFound, http.StatusNotFound},
		{util.ErrNotEnrolled, http.StatusForbidden},
		{util.ErrPermissionDenied, http.StatusForbidden},
		{util.ErrPaymentReused, http.StatusConflict},
		{fmt.Errorf("%w: status 400 amount exceeds maximum", util.ErrGatewayRejected), http.StatusUnprocessableEntity},
		{util.Transient(errors.New("dial tcp: connection refused")), http.StatusServiceUnavailable},
		{util.Transient(fmt.Errorf("%w: payment status %q", util.ErrPaymentPending, "created")), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		code, _ := respond(t, tc.err)
		assert.Equal(t, tc.status, code, tc.err.Error())
	}
}

func TestRespondErrorHidesStorageDetails(t *testing.T) {
	code, body := respond(t, util.Transient(errors.New("Error 1213: Deadlock found")))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, body.Message, "Deadlock")
}

func TestRespondErrorEligibilityData(t *testing.T) {
	code, body := respond(t, &util.EligibilityError{Reason: util.ErrIneligible, Average: 74.5, Attempted: 2, Required: 2})
	assert.Equal(t, http.StatusBadRequest, code)
	data := body.Data.(map[string]interface{})
	assert.EqualValues(t, 74.5, data["average"])

	_, body = respond(t, &util.EligibilityError{Reason: util.ErrIncomplete, Attempted: 1, Required: 2})
	data = body.Data.(map[string]interface{})
	assert.NotContains(t, data, "average")
	assert.EqualValues(t, 1, data["attempted"])
}
