package handler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/errs"
	"github.com/odl-go/circulation-service/circulation/internal/handler"
	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/pkg/auth"
	"github.com/odl-go/circulation-service/pkg/validate"

	service_mocks "github.com/odl-go/circulation-service/circulation/internal/handler/mocks"
)

const (
	testPoolUID = "83575e12-7ce0-48ee-9931-51919ff3c9ee"
	testPatron  = "patron-a"
)

func TestHandler_Checkout(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dm := model.DeliveryMechanism{ContentType: "application/epub+zip"}

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Checkout(gomock.Any(), testPatron, testPoolUID, dm).
					Return(model.Loan{
						LoanUID: "0e3c5a2f-45b5-4f68-9f5a-6b2a3c0de111",
						Patron:  testPatron,
						Start:   start,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"loanUid":"0e3c5a2f-45b5-4f68-9f5a-6b2a3c0de111","patron":"patron-a","start":"2024-03-01T12:00:00Z"}`,
			},
		},
		{
			name: "err. no copies",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Checkout(gomock.Any(), testPatron, testPoolUID, dm).
					Return(model.Loan{}, errs.ErrNoAvailableCopies)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"no available copies"}`,
			},
		},
		{
			name: "err. already checked out",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Checkout(gomock.Any(), testPatron, testPoolUID, dm).
					Return(model.Loan{}, errs.ErrAlreadyCheckedOut)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"already checked out"}`,
			},
		},
		{
			name: "err. distributor down",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Checkout(gomock.Any(), testPatron, testPoolUID, dm).
					Return(model.Loan{}, errs.NewRemoteIntegrationError("https://dist", "request failed", errors.New("timeout")))
			},
			response: response{
				expectedCode: http.StatusBadGateway,
				expectedBody: `{"message":"remote integration error: https://dist: request failed"}`,
			},
		},
		{
			name: "err. internal",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					Checkout(gomock.Any(), testPatron, testPoolUID, dm).
					Return(model.Loan{}, errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			tt.mockBehavior(svc)
			h := handler.New(svc, zap.NewExample().Named("test"))

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/pools/:poolUid/checkout", h.Checkout, auth.MiddlewarePatron)

			r := httptest.NewRequest(http.MethodPost,
				fmt.Sprintf("/pools/%s/checkout", testPoolUID),
				strings.NewReader(`{"contentType":"application/epub+zip"}`))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XPatronID, testPatron)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_Checkout_NoPatronHeader(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	e.POST("/pools/:poolUid/checkout", h.Checkout, auth.MiddlewarePatron)

	r := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/pools/%s/checkout", testPoolUID),
		strings.NewReader(`{"contentType":"application/epub+zip"}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_PlaceHold(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					PlaceHold(gomock.Any(), testPatron, testPoolUID).
					Return(model.Hold{
						HoldUID:  "7d1f9a63-9a50-4c35-a27b-111122223333",
						Patron:   testPatron,
						Start:    start,
						Position: 2,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"holdUid":"7d1f9a63-9a50-4c35-a27b-111122223333","patron":"patron-a","start":"2024-03-01T12:00:00Z","position":2}`,
			},
		},
		{
			name: "err. currently available",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					PlaceHold(gomock.Any(), testPatron, testPoolUID).
					Return(model.Hold{}, errs.ErrCurrentlyAvailable)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"currently available"}`,
			},
		},
		{
			name: "err. holds not permitted",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					PlaceHold(gomock.Any(), testPatron, testPoolUID).
					Return(model.Hold{}, errs.ErrHoldsNotPermitted)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"holds not permitted"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			tt.mockBehavior(svc)
			h := handler.New(svc, zap.NewExample().Named("test"))

			e := echo.New()
			e.Validator = validate.NewCustomValidator()
			e.POST("/pools/:poolUid/holds", h.PlaceHold, auth.MiddlewarePatron)

			r := httptest.NewRequest(http.MethodPost,
				fmt.Sprintf("/pools/%s/holds", testPoolUID), http.NoBody)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			r.Header.Set(auth.XPatronID, testPatron)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ReleaseHold(t *testing.T) {
	t.Parallel()
	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		mockBehavior mockBehavior
		expectedCode int
	}{
		{
			name: "ok",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().ReleaseHold(gomock.Any(), testPatron, testPoolUID).Return(nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "err. not on hold",
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().ReleaseHold(gomock.Any(), testPatron, testPoolUID).Return(errs.ErrNotOnHold)
			},
			expectedCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			tt.mockBehavior(svc)
			h := handler.New(svc, zap.NewExample().Named("test"))

			e := echo.New()
			e.DELETE("/pools/:poolUid/holds", h.ReleaseHold, auth.MiddlewarePatron)

			r := httptest.NewRequest(http.MethodDelete,
				fmt.Sprintf("/pools/%s/holds", testPoolUID), http.NoBody)
			r.Header.Set(auth.XPatronID, testPatron)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)
			require.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestHandler_Fulfill(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	svc.EXPECT().
		Fulfill(gomock.Any(), testPatron, testPoolUID, model.DeliveryMechanism{
			ContentType: "application/epub+zip",
			DRMScheme:   model.DRMSchemeLCP,
		}).
		Return(model.Fulfillment{
			ContentLink: "https://dist.example.com/license/1",
			ContentType: model.DRMSchemeLCP,
		}, nil)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.GET("/pools/:poolUid/fulfill", h.Fulfill, auth.MiddlewarePatron)

	q := fmt.Sprintf("/pools/%s/fulfill?contentType=%s&drmScheme=%s",
		testPoolUID, "application%2Fepub%2Bzip", "application%2Fvnd.readium.lcp.license.v1.0%2Bjson")
	r := httptest.NewRequest(http.MethodGet, q, http.NoBody)
	r.Header.Set(auth.XPatronID, testPatron)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t,
		`{"contentLink":"https://dist.example.com/license/1","contentType":"application/vnd.readium.lcp.license.v1.0+json"}`,
		strings.Trim(w.Body.String(), "\n"))
}

func TestHandler_Notification(t *testing.T) {
	t.Parallel()
	const loanUID = "0e3c5a2f-45b5-4f68-9f5a-6b2a3c0de111"

	type mockBehavior func(r *service_mocks.MockCirculationService)

	var tests = []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		expectedCode int
	}{
		{
			name: "terminal status applied",
			body: `{"status": "revoked"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					UpdateLoan(gomock.Any(), loanUID, model.StatusDocument{Status: model.StatusRevoked}).
					Return(nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "unknown loan is accepted",
			body: `{"status": "returned"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {
				r.EXPECT().
					UpdateLoan(gomock.Any(), loanUID, model.StatusDocument{Status: model.StatusReturned}).
					Return(nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "unknown status value rejected",
			body:         `{"status": "in-limbo"}`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "malformed body rejected",
			body:         `not json`,
			mockBehavior: func(r *service_mocks.MockCirculationService) {},
			expectedCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockCirculationService(c)
			tt.mockBehavior(svc)
			h := handler.New(svc, zap.NewExample().Named("test"))

			e := echo.New()
			e.POST("/notifications/:loanUid", h.Notification)

			r := httptest.NewRequest(http.MethodPost,
				"/notifications/"+loanUID, strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)
			require.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestHandler_PatronActivity(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c := gomock.NewController(t)
	defer c.Finish()
	svc := service_mocks.NewMockCirculationService(c)
	svc.EXPECT().
		PatronActivity(gomock.Any(), testPatron).
		Return(
			[]model.Loan{{LoanUID: "0e3c5a2f-45b5-4f68-9f5a-6b2a3c0de111", Patron: testPatron, Start: start}},
			[]model.Hold{{HoldUID: "7d1f9a63-9a50-4c35-a27b-111122223333", Patron: testPatron, Start: start, Position: 1}},
			nil,
		)
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.GET("/patron/activity", h.PatronActivity, auth.MiddlewarePatron)

	r := httptest.NewRequest(http.MethodGet, "/patron/activity", http.NoBody)
	r.Header.Set(auth.XPatronID, testPatron)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	require.JSONEq(t,
		`{
			"loans": [{"loanUid":"0e3c5a2f-45b5-4f68-9f5a-6b2a3c0de111","patron":"patron-a","start":"2024-03-01T12:00:00Z"}],
			"holds": [{"holdUid":"7d1f9a63-9a50-4c35-a27b-111122223333","patron":"patron-a","start":"2024-03-01T12:00:00Z","position":1}]
		}`,
		w.Body.String())
}
