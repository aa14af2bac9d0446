package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"medeasy/pos/domain"
	"medeasy/pos/internal/api"
	"medeasy/pos/internal/config"
	"medeasy/pos/internal/database"
	"medeasy/pos/internal/migrations"
	"medeasy/pos/internal/seed"
)

var fixedNow = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	db      *sqlx.DB
	handler http.Handler
	admin   string
	cashier string
}

func testConfig() config.Config {
	return config.Config{
		Secret:             "test-secret",
		AccessTokenTTL:     30 * time.Minute,
		RefreshTokenTTL:    time.Hour,
		IdempotencyTTL:     time.Hour,
		CORSAllowedOrigins: []string{"*"},
		Pharmacy:           domain.Pharmacy{Name: "OTC Store", Address: "12 Ring Road, Accra"},
	}
}

func newTestServer(t *testing.T, opts ...api.Option) *testServer {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(db))
	_, err = seed.EnsureAdmin(context.Background(), db, "admin", "admin-pass")
	require.NoError(t, err)

	opts = append([]api.Option{api.WithClock(func() time.Time { return fixedNow })}, opts...)
	s := &testServer{t: t, db: db, handler: api.New(db, testConfig(), opts...).Router()}
	s.admin = s.login("admin", "admin-pass").AccessToken

	rec := s.do(http.MethodPost, "/users/", s.admin, map[string]string{
		"username": "Ama", "full_name": "Ama Mensah", "password": "cashier-pass", "role": domain.RoleCashier,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s.cashier = s.login("ama", "cashier-pass").AccessToken
	return s
}

func (s *testServer) login(username, password string) domain.Token {
	s.t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var tok domain.Token
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// seedParacetamol creates Paracetamol 500mg with an expired batch, a small
// early-expiry batch at 2.00 and a larger later batch at 1.85.
func (s *testServer) seedParacetamol() int64 {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/medicines/", s.admin, map[string]any{
		"name": "Paracetamol 500mg", "brand": "Panadol", "form": "tablet", "category": "painkiller",
		"selling_price": "2.00",
		"initial_batch": map[string]any{"batch_number": "P-OLD", "quantity": 10, "cost_price": "0.20", "selling_price": "0.50", "expiry_date": "2026-10-01"},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	med := decode[domain.Medicine](s.t, rec)
	require.Equal(s.t, 0, med.TotalQuantity, "expired stock is not sellable")

	for _, b := range []map[string]any{
		{"batch_number": "P-002", "quantity": 45, "cost_price": "1.00", "selling_price": "1.85", "expiry_date": "2027-06-30"},
		{"batch_number": "P-001", "quantity": 5, "cost_price": "1.10", "expiry_date": "2026-12-31"},
	} {
		rec := s.do(http.MethodPost, "/medicines/"+itoa(med.ID)+"/batches", s.admin, b)
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return med.ID
}

func (s *testServer) seedMedicine(name, price string, qty int) int64 {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/medicines/", s.admin, map[string]any{
		"name": name, "selling_price": price,
		"initial_batch": map[string]any{"batch_number": "B-1", "quantity": qty, "cost_price": "0.10"},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Medicine](s.t, rec).ID
}

func (s *testServer) medicine(id int64) domain.Medicine {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/medicines/"+itoa(id), s.cashier, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[domain.Medicine](s.t, rec)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ADMIN", "password": "admin-pass"})
	require.Equal(t, http.StatusOK, rec.Code, "JSON login is accepted and usernames are case-insensitive")
	tok := decode[domain.Token](t, rec)
	require.Equal(t, "bearer", tok.TokenType)
	require.Equal(t, domain.RoleAdmin, tok.User.Role)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", decode[apiError](t, rec).Error.Code)

	rec = s.do(http.MethodGet, "/api/v1/auth/me", s.cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[domain.User](t, rec)
	require.Equal(t, "ama", me.Username)
	require.Equal(t, "Ama Mensah", me.FullName)
	require.NotContains(t, rec.Body.String(), "password")

	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/medicines/", tok.RefreshToken, nil).Code, "refresh tokens are not access tokens")
	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/medicines/", "", nil).Code)

	rec = s.do(http.MethodPost, "/api/v1/auth/token/refresh", "", map[string]string{"refresh_token": tok.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[domain.Token](t, rec).AccessToken)

	rec = s.do(http.MethodPost, "/api/v1/auth/token/refresh", "", map[string]string{"refresh_token": tok.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleChecks(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/users/", s.cashier, nil).Code)
	require.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/medicines/", s.cashier, map[string]any{"name": "X", "selling_price": "1"}).Code)

	rec := s.do(http.MethodGet, "/users/", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]domain.User](t, rec), 2)

	rec = s.do(http.MethodPost, "/users/", s.admin, map[string]string{"username": "ama", "full_name": "Other", "password": "secret1", "role": domain.RoleManager})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/users/", s.admin, map[string]string{"username": "kofi", "full_name": "Kofi", "password": "secret1", "role": "OWNER"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", decode[apiError](t, rec).Error.Code)
}

func TestQuoteUsesBatchPrices(t *testing.T) {
	s := newTestServer(t)
	id := s.seedParacetamol()
	require.Equal(t, 50, s.medicine(id).TotalQuantity)

	quote := func(qty int) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/sales/quote", s.cashier, domain.QuoteRequest{MedicineID: id, Quantity: qty})
	}

	rec := quote(5)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"total_price":"10"`, "money is an exact decimal string")
	q := decode[domain.QuoteResponse](t, rec)
	require.Equal(t, 5, q.Quantity)
	require.True(t, q.TotalPrice.Equal(dec("10.00")), q.TotalPrice.String())

	q = decode[domain.QuoteResponse](t, quote(8))
	require.True(t, q.TotalPrice.Equal(dec("15.55")), "5 x 2.00 + 3 x 1.85, got %s", q.TotalPrice)

	rec = quote(51)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[apiError](t, rec)
	require.Equal(t, "INSUFFICIENT_STOCK", body.Error.Code)
	require.Contains(t, body.Error.Message, "Paracetamol 500mg: 50 available, 51 requested")

	require.Equal(t, http.StatusBadRequest, quote(0).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/sales/quote", s.cashier, domain.QuoteRequest{MedicineID: 999, Quantity: 1}).Code)
	require.Equal(t, 50, s.medicine(id).TotalQuantity, "quotes never reserve stock")
}

func TestCreateSaleDepletesEarliestExpiryFirst(t *testing.T) {
	s := newTestServer(t)
	id := s.seedParacetamol()

	rec := s.do(http.MethodPost, "/sales/", s.cashier, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{MedicineID: id, Quantity: 6}, {MedicineID: id, Quantity: 2}},
		PaymentMethod: domain.PaymentMobileMoney,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[domain.Receipt](t, rec)

	require.Regexp(t, `^INV-20261019-[0-9A-F]{8}$`, receipt.InvoiceNumber)
	require.Equal(t, "Ama Mensah", receipt.SoldBy)
	require.Equal(t, domain.PaymentMobileMoney, receipt.PaymentMethod)
	require.True(t, receipt.TotalAmount.Equal(dec("15.55")))
	require.Equal(t, "OTC Store", receipt.Pharmacy.Name)
	require.Len(t, receipt.Items, 2)
	require.Equal(t, 5, receipt.Items[0].Quantity)
	require.True(t, receipt.Items[0].UnitPrice.Equal(dec("2.00")))
	require.Equal(t, 3, receipt.Items[1].Quantity)
	require.True(t, receipt.Items[1].Subtotal.Equal(dec("5.55")))
	require.Equal(t, "Paracetamol 500mg", receipt.Items[1].MedicineName)

	require.Equal(t, 42, s.medicine(id).TotalQuantity)

	rec = s.do(http.MethodGet, "/sales/"+itoa(receipt.ID), s.cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, receipt.InvoiceNumber, decode[domain.Receipt](t, rec).InvoiceNumber)

	quote := decode[domain.QuoteResponse](t, s.do(http.MethodPost, "/sales/quote", s.cashier, domain.QuoteRequest{MedicineID: id, Quantity: 2}))
	require.True(t, quote.TotalPrice.Equal(dec("3.70")), "the 2.00 batch is used up")
}

func TestSaleIsAllOrNothing(t *testing.T) {
	s := newTestServer(t)
	para := s.seedParacetamol()
	amox := s.seedMedicine("Amoxicillin 250mg", "5.50", 10)

	rec := s.do(http.MethodPost, "/sales/", s.cashier, domain.SaleRequest{
		Items:         []domain.SaleItemRequest{{MedicineID: para, Quantity: 2}, {MedicineID: amox, Quantity: 11}},
		PaymentMethod: domain.PaymentCash,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, decode[apiError](t, rec).Error.Message, "Amoxicillin 250mg")
	require.Equal(t, 50, s.medicine(para).TotalQuantity)
	require.Equal(t, 10, s.medicine(amox).TotalQuantity)

	var sales int
	require.NoError(t, s.db.Get(&sales, `SELECT COUNT(*) FROM sales`))
	require.Zero(t, sales)
}

func TestCreateSaleValidation(t *testing.T) {
	s := newTestServer(t)
	id := s.seedMedicine("Zinc 20mg", "0.75", 4)

	cases := map[string]any{
		"empty items":    map[string]any{"items": []any{}, "payment_method": "cash"},
		"bad method":     map[string]any{"items": []any{map[string]any{"medicine_id": id, "quantity": 1}}, "payment_method": "card"},
		"zero quantity":  map[string]any{"items": []any{map[string]any{"medicine_id": id, "quantity": 0}}, "payment_method": "cash"},
		"unknown fields": map[string]any{"items": []any{map[string]any{"medicine_id": id, "quantity": 1}}, "payment_method": "cash", "discount": 5},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/sales/", s.cashier, body).Code)
		})
	}
	require.Equal(t, 4, s.medicine(id).TotalQuantity)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, api.WithRedis(client))
	id := s.seedMedicine("Zinc 20mg", "0.75", 20)
	sale := domain.SaleRequest{Items: []domain.SaleItemRequest{{MedicineID: id, Quantity: 3}}, PaymentMethod: domain.PaymentCash}

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/sales/", s.cashier, sale, "Idempotency-Key", "k-1").Code)
	rec := s.do(http.MethodPost, "/sales/", s.cashier, sale, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "IDEMPOTENT_REPLAY", decode[apiError](t, rec).Error.Code)
	require.Equal(t, 17, s.medicine(id).TotalQuantity)

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/sales/", s.cashier, sale, "Idempotency-Key", "k-2").Code)
	require.Equal(t, 14, s.medicine(id).TotalQuantity)

	rec = s.do(http.MethodGet, "/health", "", nil)
	require.JSONEq(t, `{"status":"ok","database":"ok","redis":"ok"}`, rec.Body.String())
}

func TestSalesListScopedForCashiers(t *testing.T) {
	s := newTestServer(t)
	id := s.seedMedicine("Zinc 20mg", "0.75", 20)
	sale := domain.SaleRequest{Items: []domain.SaleItemRequest{{MedicineID: id, Quantity: 1}}, PaymentMethod: domain.PaymentCash}

	adminSale := decode[domain.Receipt](t, s.do(http.MethodPost, "/sales/", s.admin, sale))
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/sales/", s.cashier, sale).Code)

	require.Len(t, decode[[]domain.Sale](t, s.do(http.MethodGet, "/sales/", s.admin, nil)), 2)
	mine := decode[[]domain.Sale](t, s.do(http.MethodGet, "/sales/", s.cashier, nil))
	require.Len(t, mine, 1)
	require.Equal(t, "Ama Mensah", mine[0].SoldBy)

	require.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/sales/"+itoa(adminSale.ID), s.cashier, nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/sales/"+itoa(adminSale.ID), s.admin, nil).Code)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	para := s.seedParacetamol()
	s.seedMedicine("Zinc 20mg", "0.75", 4)
	rec := s.do(http.MethodPost, "/medicines/"+itoa(para)+"/batches", s.admin, map[string]any{
		"batch_number": "P-SOON", "quantity": 3, "cost_price": "1.00", "expiry_date": "2026-11-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	sale := domain.SaleRequest{Items: []domain.SaleItemRequest{{MedicineID: para, Quantity: 2}}, PaymentMethod: domain.PaymentCash}
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/sales/", s.cashier, sale).Code)

	stats := decode[domain.DashboardStats](t, s.do(http.MethodGet, "/dashboard/stats", s.cashier, nil))
	require.Equal(t, 2, stats.TotalMedicines)
	require.Equal(t, 1, stats.LowStockCount)
	require.Equal(t, 1, stats.ExpiringSoonItemsCount, "P-SOON; P-001 expires after the window and P-OLD already expired")
	require.Equal(t, 1, stats.SalesToday)
	require.True(t, stats.RevenueToday.Equal(dec("4.00")), "P-SOON sells first at the default price")

	low := decode[[]domain.Medicine](t, s.do(http.MethodGet, "/dashboard/low-stock?threshold=5", s.cashier, nil))
	require.Len(t, low, 1)
	require.Equal(t, "Zinc 20mg", low[0].Name)

	expiring := decode[[]domain.ExpiringBatch](t, s.do(http.MethodGet, "/dashboard/expiring-soon?days=90", s.cashier, nil))
	require.Len(t, expiring, 2)
	require.Equal(t, "P-SOON", expiring[0].BatchNumber)
	require.Equal(t, "P-001", expiring[1].BatchNumber)
}

func TestImportMedicinesCSV(t *testing.T) {
	s := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "catalog.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("name,brand,form,category,selling_price\nIbuprofen 400mg,Brufen,tablet,painkiller,3.20\nBad,,,,free\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/medicines/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.admin)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[seed.ImportResult](t, rec)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 1, result.Skipped)

	meds := decode[[]domain.Medicine](t, s.do(http.MethodGet, "/medicines/?search=ibu", s.cashier, nil))
	require.Len(t, meds, 1)
	require.True(t, meds[0].SellingPrice.Equal(dec("3.20")))
	require.Zero(t, meds[0].TotalQuantity)
	require.Nil(t, meds[0].EarliestExpiry)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.seedMedicine("Zinc 20mg", "0.75", 4)
	s.do(http.MethodPost, "/sales/quote", s.cashier, domain.QuoteRequest{MedicineID: id, Quantity: 2})

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `medeasy_quotes_total{outcome="ok"} 1`)
}

func TestLoginAtTokenPath(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{"username": {"ama"}, "password": {"cashier-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Ama Mensah", decode[domain.Token](t, rec).User.FullName)
}

func (s *testServer) userID(username string) int64 {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/users/", s.admin, nil)
	require.Equal(s.t, http.StatusOK, rec.Code)
	for _, u := range decode[[]domain.User](s.t, rec) {
		if u.Username == username {
			return u.ID
		}
	}
	s.t.Fatalf("user %s not found", username)
	return 0
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t)
	ama, admin := s.userID("ama"), s.userID("admin")

	require.Equal(t, http.StatusForbidden, s.do(http.MethodPut, "/users/"+itoa(ama), s.cashier, map[string]string{"role": domain.RoleManager}).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/users/999", s.admin, map[string]string{"role": domain.RoleManager}).Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/users/"+itoa(ama), s.admin, map[string]string{"role": "OWNER"}).Code)

	rec := s.do(http.MethodPut, "/users/"+itoa(ama), s.admin, map[string]string{"role": domain.RoleManager})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.User](t, rec)
	require.Equal(t, domain.RoleManager, updated.Role)
	require.Equal(t, "Ama Mensah", updated.FullName, "omitted fields are kept")

	rec = s.do(http.MethodPut, "/users/"+itoa(admin), s.admin, map[string]string{"role": domain.RoleCashier})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "SELF_LOCKOUT", decode[apiError](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/users/"+itoa(ama)+"/reset-password", s.admin, map[string]string{"new_password": "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/users/"+itoa(ama)+"/reset-password", s.cashier, map[string]string{"new_password": "482915"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/users/"+itoa(ama)+"/reset-password", s.admin, map[string]string{"new_password": "482915"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ama", "password": "cashier-pass"}).Code)
	require.Equal(t, domain.RoleManager, s.login("ama", "482915").User.Role)
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/users/", s.admin, map[string]string{"username": "kofi", "full_name": "Kofi Boateng", "password": "secret1", "role": domain.RoleCashier})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	kofi := decode[domain.User](t, rec).ID

	require.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/users/"+itoa(kofi), s.cashier, nil).Code)
	require.Equal(t, http.StatusConflict, s.do(http.MethodDelete, "/users/"+itoa(s.userID("admin")), s.admin, nil).Code)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/users/"+itoa(kofi), s.admin, nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/users/"+itoa(kofi), s.admin, nil).Code)

	// A cashier with sales history is deactivated so receipts keep their name.
	zinc := s.seedMedicine("Zinc 20mg", "1.00", 5)
	rec = s.do(http.MethodPost, "/sales/", s.cashier, domain.SaleRequest{Items: []domain.SaleItemRequest{{MedicineID: zinc, Quantity: 1}}, PaymentMethod: domain.PaymentCash})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saleID := decode[domain.Receipt](t, rec).ID

	rec = s.do(http.MethodDelete, "/users/"+itoa(s.userID("ama")), s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decode[domain.User](t, rec).IsActive)

	rec = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ama", "password": "cashier-pass"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "INACTIVE_USER", decode[apiError](t, rec).Error.Code)

	rec = s.do(http.MethodGet, "/sales/"+itoa(saleID), s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Ama Mensah", decode[domain.Receipt](t, rec).SoldBy)
}

func TestUpdateMedicine(t *testing.T) {
	s := newTestServer(t)
	id := s.seedMedicine("Vitamin C", "1.50", 20)
	path := "/medicines/" + itoa(id)
	body := map[string]any{"name": "Vitamin C 1000mg", "category": "supplement", "selling_price": "2.00"}

	require.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, s.cashier, body).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/medicines/999", s.admin, body).Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, path, s.admin, map[string]any{"name": "Vitamin C", "category": "candy", "selling_price": "2.00"}).Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, path, s.admin, map[string]any{"name": "Vitamin C", "category": "supplement", "selling_price": "0"}).Code)

	rec := s.do(http.MethodPut, path, s.admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	med := decode[domain.Medicine](t, rec)
	require.Equal(t, "Vitamin C 1000mg", med.Name)
	require.Equal(t, "supplement", med.Category)
	require.Equal(t, 20, med.TotalQuantity)
	require.True(t, med.SellingPrice.Equal(dec("2.00")))

	rec = s.do(http.MethodPost, path+"/batches", s.admin, map[string]any{"batch_number": "B-2", "quantity": 5, "cost_price": "0.50"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, decode[domain.Batch](t, rec).SellingPrice.Equal(dec("2.00")), "new batches take the new price")

	q := decode[domain.QuoteResponse](t, s.do(http.MethodPost, "/sales/quote", s.cashier, domain.QuoteRequest{MedicineID: id, Quantity: 1}))
	require.True(t, q.TotalPrice.Equal(dec("1.50")), "existing batches keep their price")

	other := s.seedMedicine("Ibuprofen 200mg", "1.00", 5)
	rec = s.do(http.MethodPut, "/medicines/"+itoa(other), s.admin, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "MEDICINE_EXISTS", decode[apiError](t, rec).Error.Code)
}

func TestDeleteMedicine(t *testing.T) {
	s := newTestServer(t)
	unsold := s.seedMedicine("Vitamin C", "1.50", 20)
	sold := s.seedMedicine("Zinc 20mg", "1.00", 5)
	rec := s.do(http.MethodPost, "/sales/", s.cashier, domain.SaleRequest{Items: []domain.SaleItemRequest{{MedicineID: sold, Quantity: 1}}, PaymentMethod: domain.PaymentCash})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/medicines/"+itoa(unsold), s.cashier, nil).Code)

	rec = s.do(http.MethodDelete, "/medicines/"+itoa(sold), s.admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "MEDICINE_HAS_SALES", decode[apiError](t, rec).Error.Code)

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/medicines/"+itoa(unsold), s.admin, nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/medicines/"+itoa(unsold), s.admin, nil).Code)
	require.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/medicines/"+itoa(unsold), s.admin, nil).Code)
}
