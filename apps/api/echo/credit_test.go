package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/masomo-credits/apps/api/echo"
	"github.com/trezcool/masomo-credits/core/credit"
	inmemdb "github.com/trezcool/masomo-credits/storage/database/inmem"
	testutil "github.com/trezcool/masomo-credits/tests"
)

const owner = "school-42"

func Test_creditApi_auth(t *testing.T) {
	a := setup(t)

	noSubject, err := echoapi.GenerateToken(a.conf, echoapi.NewOwnerClaims(a.conf, " ", "", ""))
	require.NoError(t, err)

	expiredClaims := echoapi.NewOwnerClaims(a.conf, owner, "", "")
	expiredClaims.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	expired, err := echoapi.GenerateToken(a.conf, expiredClaims)
	require.NoError(t, err)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, echoapi.NewOwnerClaims(a.conf, owner, "", "")).
		SignedString([]byte("not-the-secret"))
	require.NoError(t, err)

	invalidJWT := marchallObj(t, httpErr{Error: "invalid or expired jwt"})
	tests := []httpTest{
		{name: "missing token", method: http.MethodGet, path: "/v1/credits/balance", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "expired token", method: http.MethodGet, path: "/v1/credits/balance", token: expired, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "forged token", method: http.MethodPost, path: "/v1/credits/consumptions", token: forged, wantCode: http.StatusUnauthorized, wantData: invalidJWT},
		{name: "no owner", method: http.MethodGet, path: "/v1/credits/balance", token: noSubject, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "owner not authenticated"})},
	}
	runHTTPTests(t, a, tests)
}

func Test_creditApi_balance(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)

	rec := a.do(t, http.MethodGet, "/v1/credits/balance", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal credit.Balance
	unmarchall(t, rec, &bal)
	assert.Equal(t, credit.Balance{Owner: owner}, credit.Balance{Owner: bal.Owner, Current: bal.Current, Purchased: bal.Purchased, Consumed: bal.Consumed})

	testutil.Credit(t, a.repo, owner, 12)
	rec = a.do(t, http.MethodGet, "/v1/credits/balance", token)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarchall(t, rec, &bal)
	assert.Equal(t, int64(12), bal.Current)
	assert.Equal(t, int64(12), bal.Purchased)
}

func Test_creditApi_catalog(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)

	var active []credit.Package
	for _, p := range inmemdb.DefaultPackages() {
		if p.IsActive {
			active = append(active, p)
		}
	}

	tests := []httpTest{
		{name: "packages", method: http.MethodGet, path: "/v1/credits/packages", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, active)},
		{
			name: "cost", method: http.MethodGet, path: "/v1/credits/costs/transcript", token: token, wantCode: http.StatusOK,
			wantData: marchallObj(t, credit.CostEntry{DocumentType: "transcript", Cost: 4, Category: credit.CategoryAcademic}),
		},
		{
			name: "unknown cost", method: http.MethodGet, path: "/v1/credits/costs/diploma", token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: credit.ErrUnknownDocumentType.Error()}),
		},
	}
	runHTTPTests(t, a, tests)

	rec := a.do(t, http.MethodGet, "/v1/credits/costs", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var costs []credit.CostEntry
	unmarchall(t, rec, &costs)
	assert.ElementsMatch(t, inmemdb.DefaultCosts(), costs)
}

func Test_creditApi_purchase(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)

	tests := []httpTest{
		{
			name: "invalid JSON", method: http.MethodPost, path: "/v1/credits/purchases", token: token,
			body: []byte(`{"package_id": 12`), wantCode: http.StatusBadRequest,
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/credits/purchases", token: token,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"package_id": "this field is required", "payment_method": "this field is required"}`),
		},
		{
			name: "unknown payment method", method: http.MethodPost, path: "/v1/credits/purchases", token: token,
			body: []byte(`{"package_id": "basic", "payment_method": "barter"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"payment_method": "invalid payment method, expected one of: card, mobile_money, bank_transfer, cash, free"}`),
		},
		{
			name: "unknown package", method: http.MethodPost, path: "/v1/credits/purchases", token: token,
			body: []byte(`{"package_id": "platinum", "payment_method": "card"}`), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: credit.ErrPackageNotFound.Error()}),
		},
		{
			name: "inactive package", method: http.MethodPost, path: "/v1/credits/purchases", token: token,
			body: []byte(`{"package_id": "legacy_25", "payment_method": "card"}`), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: credit.ErrPackageNotFound.Error()}),
		},
	}
	runHTTPTests(t, a, tests)

	rec := a.do(t, http.MethodPost, "/v1/credits/purchases", token,
		[]byte(`{"package_id": "basic", "payment_method": "Mobile_Money", "receipt_email": "bursar@school.test"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rcpt credit.Receipt
	unmarchall(t, rec, &rcpt)
	assert.Equal(t, int64(50), rcpt.Balance.Current)
	assert.Equal(t, int64(50), rcpt.Balance.Purchased)
	assert.Equal(t, int64(50), rcpt.Transaction.Credits)
	assert.Equal(t, owner, rcpt.Transaction.Owner)
	assert.Equal(t, credit.PaymentMobileMoney, rcpt.Transaction.PaymentMethod)
	assert.Equal(t, "5", rcpt.Transaction.Price.String())
	assert.Len(t, a.mailSvc.SentMessages(), 1)
}

func Test_creditApi_consume(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)
	consume := func(docType string) []byte { return []byte(`{"document_type": "` + docType + `"}`) }

	tests := []httpTest{
		{
			name: "zero balance", method: http.MethodPost, path: "/v1/credits/consumptions", token: token,
			body: consume("fee_receipt"), wantCode: http.StatusPaymentRequired,
			wantData: marchallObj(t, httpErr{Error: credit.ErrInsufficientFunds.Error()}),
		},
		{
			name: "unknown document type", method: http.MethodPost, path: "/v1/credits/consumptions", token: token,
			body: consume("diploma"), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: credit.ErrUnknownDocumentType.Error()}),
		},
		{
			name: "invalid document type", method: http.MethodPost, path: "/v1/credits/consumptions", token: token,
			body: consume("fee receipt"), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"document_type": "only alphanumeric characters and underscores are allowed"}`),
		},
	}
	runHTTPTests(t, a, tests)

	testutil.Credit(t, a.repo, owner, 50)
	rec := a.do(t, http.MethodPost, "/v1/credits/consumptions", token, consume("id_card"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var cons credit.Consumption
	unmarchall(t, rec, &cons)
	assert.Equal(t, int64(48), cons.Balance.Current)
	assert.Equal(t, int64(50), cons.Balance.Purchased)
	assert.Equal(t, int64(2), cons.Balance.Consumed)
	assert.Equal(t, "id_card", cons.Usage.DocumentType)
	assert.Equal(t, credit.OutcomeSuccess, cons.Usage.Outcome)

	// another owner's balance is untouched
	rec = a.do(t, http.MethodGet, "/v1/credits/balance", getToken(t, a.conf, "school-7"))
	var other credit.Balance
	unmarchall(t, rec, &other)
	assert.Zero(t, other.Current)
}

func Test_creditApi_history(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)

	for _, pkgID := range []string{"starter", "basic", "standard"} {
		rec := a.do(t, http.MethodPost, "/v1/credits/purchases", token, []byte(`{"package_id": "`+pkgID+`", "payment_method": "cash"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	for _, docType := range []string{"transcript", "id_card"} {
		rec := a.do(t, http.MethodPost, "/v1/credits/consumptions", token, []byte(`{"document_type": "`+docType+`"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := a.do(t, http.MethodGet, "/v1/credits/transactions?limit=2", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var trxs []credit.Transaction
	unmarchall(t, rec, &trxs)
	require.Len(t, trxs, 2)
	assert.Equal(t, "standard", trxs[0].PackageID)
	assert.Equal(t, "basic", trxs[1].PackageID)

	rec = a.do(t, http.MethodGet, "/v1/credits/transactions?limit=2&offset=2", token)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarchall(t, rec, &trxs)
	require.Len(t, trxs, 1)
	assert.Equal(t, "starter", trxs[0].PackageID)

	rec = a.do(t, http.MethodGet, "/v1/credits/usage", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []credit.UsageEntry
	unmarchall(t, rec, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "id_card", entries[0].DocumentType)
	assert.Equal(t, "transcript", entries[1].DocumentType)

	tests := []httpTest{
		{
			name: "invalid limit", method: http.MethodGet, path: "/v1/credits/usage?limit=ten", token: token, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"limit": "must be a non-negative integer"}`),
		},
		{
			name: "negative offset", method: http.MethodGet, path: "/v1/credits/transactions?offset=-1", token: token, wantCode: http.StatusBadRequest,
			wantData: []byte(`{"offset": "must be a non-negative integer"}`),
		},
		{name: "other owner", method: http.MethodGet, path: "/v1/credits/usage", token: getToken(t, a.conf, "school-7"), wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	runHTTPTests(t, a, tests)
}

func Test_metrics(t *testing.T) {
	a := setup(t)
	token := getToken(t, a.conf, owner)

	rec := a.do(t, http.MethodPost, "/v1/credits/purchases", token, []byte(`{"package_id": "starter", "payment_method": "free"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/credits/consumptions", token, []byte(`{"document_type": "certificate"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		`masomo_credit_purchases_total{package="starter",payment_method="free"} 1`,
		`masomo_credit_consumptions_total{document_type="certificate",outcome="success"} 1`,
		`masomo_credits_consumed_total{document_type="certificate"} 5`,
		`masomo_http_requests_total{method="POST",path="/v1/credits/purchases",status="201"} 1`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %s", want)
	}
}
