package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
	"expense-ledger/internal/storage/memory"
	"expense-ledger/web"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type HandlersTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	h     *Handlers
	user  *models.User
	other *models.User
	token string
}

func (s *HandlersTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.h = NewHandlers(s.store, web.TemplatesFS, zerolog.Nop(), Options{AllowRegistration: true})
	s.h.now = func() time.Time { return fixedNow }

	hash, err := auth.HashPassword("testpass")
	s.Require().NoError(err)
	s.user, err = s.store.CreateUser(s.ctx, "testuser", hash)
	s.Require().NoError(err)
	s.other, err = s.store.CreateUser(s.ctx, "otheruser", hash)
	s.Require().NoError(err)

	s.token = s.sessionFor(s.user, time.Now().Add(SessionDuration))
}

func (s *HandlersTestSuite) sessionFor(u *models.User, expiresAt time.Time) string {
	token, err := auth.GenerateSessionToken()
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateSession(s.ctx, token, u.ID, expiresAt))
	return token
}

func (s *HandlersTestSuite) addExpense(owner *models.User, title, category, amount, date string) *models.Expense {
	e := &models.Expense{
		OwnerID:  owner.ID,
		Title:    title,
		Category: category,
		Amount:   decimal.RequireFromString(amount),
		Date:     date,
	}
	s.Require().NoError(s.store.CreateExpense(s.ctx, e))
	return e
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// serve runs handler behind AuthMiddleware with the suite user's session.
func (s *HandlersTestSuite) serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.token})
	w := httptest.NewRecorder()
	s.h.AuthMiddleware(handler).ServeHTTP(w, req)
	return w
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *HandlersTestSuite) TestAuthMiddleware_NoCookie() {
	w := httptest.NewRecorder()
	s.h.AuthMiddleware(http.HandlerFunc(s.h.ListExpenses)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/expenses", nil))

	s.Equal(http.StatusFound, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
}

func (s *HandlersTestSuite) TestAuthMiddleware_InvalidSessionClearsCookie() {
	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "bogus"})
	w := httptest.NewRecorder()
	s.h.AuthMiddleware(http.HandlerFunc(s.h.ListExpenses)).ServeHTTP(w, req)

	s.Equal(http.StatusFound, w.Code)
	c := findCookie(w, SessionCookieName)
	s.Require().NotNil(c)
	s.Equal(-1, c.MaxAge)
}

func (s *HandlersTestSuite) TestAuthMiddleware_HTMXRedirect() {
	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()
	s.h.AuthMiddleware(http.HandlerFunc(s.h.ListExpenses)).ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("HX-Location"), `"/login"`)
}

func (s *HandlersTestSuite) TestAuthMiddleware_RollingRenewal() {
	s.token = s.sessionFor(s.user, time.Now().Add(24*time.Hour))

	w := s.serve(s.h.ListExpenses, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	s.Equal(http.StatusOK, w.Code)

	c := findCookie(w, SessionCookieName)
	s.Require().NotNil(c, "session cookie should be refreshed")
	s.Equal(s.token, c.Value)

	info, err := s.store.ValidateSession(s.ctx, s.token)
	s.Require().NoError(err)
	s.True(info.ExpiresAt.After(time.Now().Add(SessionDuration/2)), "expiry should be extended")
}

func (s *HandlersTestSuite) TestAuthMiddleware_FreshSessionNotRenewed() {
	w := s.serve(s.h.ListExpenses, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Nil(findCookie(w, SessionCookieName))
}

func (s *HandlersTestSuite) TestLogin_Success() {
	w := httptest.NewRecorder()
	s.h.Login(w, formRequest(http.MethodPost, "/login", url.Values{
		"username": {"testuser"},
		"password": {"testpass"},
	}))

	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal("/expenses", w.Header().Get("Location"))

	c := findCookie(w, SessionCookieName)
	s.Require().NotNil(c)
	s.True(c.HttpOnly)
	info, err := s.store.ValidateSession(s.ctx, c.Value)
	s.Require().NoError(err)
	s.Equal(s.user.ID, info.User.ID)
}

func (s *HandlersTestSuite) TestLogin_Failures() {
	tests := []struct {
		name     string
		username string
		password string
		status   int
		message  string
	}{
		{"wrong password", "testuser", "nope", http.StatusUnauthorized, "Invalid username or password"},
		{"unknown user", "ghost", "testpass", http.StatusUnauthorized, "Invalid username or password"},
		{"missing fields", "", "", http.StatusBadRequest, "Username and password are required"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := httptest.NewRecorder()
			s.h.Login(w, formRequest(http.MethodPost, "/login", url.Values{
				"username": {tt.username},
				"password": {tt.password},
			}))

			s.Equal(tt.status, w.Code)
			s.Contains(w.Body.String(), tt.message)
			s.Nil(findCookie(w, SessionCookieName))
		})
	}
}

func (s *HandlersTestSuite) TestLoginForm_AlreadyLoggedIn() {
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.token})
	w := httptest.NewRecorder()
	s.h.LoginForm(w, req)

	s.Equal(http.StatusFound, w.Code)
	s.Equal("/expenses", w.Header().Get("Location"))
}

func (s *HandlersTestSuite) TestLoginForm_Renders() {
	w := httptest.NewRecorder()
	s.h.LoginForm(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "login-form")
	s.Contains(w.Body.String(), `href="/register"`)
	s.Contains(w.Body.String(), "<html")
}

func (s *HandlersTestSuite) TestRegister_Success() {
	w := httptest.NewRecorder()
	s.h.Register(w, formRequest(http.MethodPost, "/register", url.Values{
		"username": {"  newuser "},
		"password": {"secret1"},
		"confirm":  {"secret1"},
	}))

	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
	s.NotNil(findCookie(w, flashCookieName))

	u, err := s.store.GetUserByUsername(s.ctx, "newuser")
	s.Require().NoError(err)
	s.True(auth.CheckPassword("secret1", u.PasswordHash))
}

func (s *HandlersTestSuite) TestRegister_Rejected() {
	tests := []struct {
		name     string
		username string
		password string
		confirm  string
		flash    string
	}{
		{"duplicate", "testuser", "secret1", "secret1", "Username already exists"},
		{"bad username", "a!", "secret1", "secret1", "Username must be"},
		{"short password", "newuser", "123", "123", "Password must be at least 6 characters"},
		{"mismatch", "newuser", "secret1", "secret2", "Passwords do not match"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := httptest.NewRecorder()
			s.h.Register(w, formRequest(http.MethodPost, "/register", url.Values{
				"username": {tt.username},
				"password": {tt.password},
				"confirm":  {tt.confirm},
			}))

			s.Equal(http.StatusSeeOther, w.Code)
			s.Equal("/register", w.Header().Get("Location"))

			// The flash shows up on the next rendered page.
			c := findCookie(w, flashCookieName)
			s.Require().NotNil(c)
			next := httptest.NewRequest(http.MethodGet, "/register", nil)
			next.AddCookie(c)
			page := httptest.NewRecorder()
			s.h.RegisterForm(page, next)
			s.Contains(page.Body.String(), tt.flash)
		})
	}

	count, err := s.store.UserCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *HandlersTestSuite) TestRegister_Disabled() {
	s.h.opts.AllowRegistration = false

	w := httptest.NewRecorder()
	s.h.RegisterForm(w, httptest.NewRequest(http.MethodGet, "/register", nil))
	s.Equal(http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	s.h.Register(w, formRequest(http.MethodPost, "/register", url.Values{
		"username": {"newuser"}, "password": {"secret1"}, "confirm": {"secret1"},
	}))
	s.Equal(http.StatusNotFound, w.Code)
	_, err := s.store.GetUserByUsername(s.ctx, "newuser")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *HandlersTestSuite) TestLogout() {
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.token})
	w := httptest.NewRecorder()
	s.h.Logout(w, req)

	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal("/login", w.Header().Get("Location"))
	_, err := s.store.ValidateSession(s.ctx, s.token)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *HandlersTestSuite) TestListExpenses_OwnerScoped() {
	s.addExpense(s.user, "Lunch", "Food", "100", "2024-03-15")
	s.addExpense(s.user, "Train", "Travel", "75", "2024-03-14")
	s.addExpense(s.user, "Dinner", "Food", "50", "2024-02-01")
	s.addExpense(s.other, "Secret", "Food", "999", "2024-03-15")

	w := s.serve(s.h.ListExpenses, httptest.NewRequest(http.MethodGet, "/expenses", nil))
	s.Equal(http.StatusOK, w.Code)

	body := w.Body.String()
	s.Contains(body, "Lunch")
	s.Contains(body, "Train")
	s.Contains(body, "Dinner")
	s.NotContains(body, "Secret")
	s.Contains(body, "225.00")
	s.Contains(body, "TODAY")
	s.Contains(body, "YESTERDAY")
	s.Contains(body, "THU, 01 FEB &#39;24")
}

func (s *HandlersTestSuite) TestListExpenses_HTMXPartial() {
	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.Header.Set("HX-Request", "true")
	w := s.serve(s.h.ListExpenses, req)

	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "<html")
	s.Contains(w.Body.String(), "list-screen")
}

func (s *HandlersTestSuite) TestGroupByDay() {
	expenses := []models.Expense{
		{Title: "a", Amount: decimal.NewFromInt(10), Date: "2024-03-15"},
		{Title: "b", Amount: decimal.NewFromInt(5), Date: "2024-03-15"},
		{Title: "c", Amount: decimal.NewFromInt(1), Date: "2024-01-02"},
	}

	groups := groupByDay(expenses, fixedNow)
	s.Require().Len(groups, 2)
	s.Equal("TODAY", groups[0].Title)
	s.Equal("15.00", groups[0].Total.StringFixed(2))
	s.Len(groups[0].Items, 2)
	s.Equal("2024-01-02", groups[1].Date)

	s.Empty(groupByDay(nil, fixedNow))
}

func (s *HandlersTestSuite) TestCreateExpense_Success() {
	w := s.serve(s.h.CreateExpense, formRequest(http.MethodPost, "/expenses", url.Values{
		"title":    {"  Coffee "},
		"category": {""},
		"amount":   {"3,456"},
		"date":     {""},
	}))

	s.Equal(http.StatusSeeOther, w.Code)
	s.Equal("/expenses", w.Header().Get("Location"))

	list, err := s.store.ListExpenses(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("Coffee", list[0].Title)
	s.Equal(models.DefaultCategory, list[0].Category)
	s.Equal("3.46", list[0].Amount.StringFixed(2))
	s.Equal("2024-03-15", list[0].Date)
	s.Equal(s.user.ID, list[0].OwnerID)
}

func (s *HandlersTestSuite) TestCreateExpense_HTMX() {
	req := formRequest(http.MethodPost, "/expenses", url.Values{
		"title": {"Coffee"}, "amount": {"4"}, "date": {"2024-03-01"},
	})
	req.Header.Set("HX-Request", "true")
	w := s.serve(s.h.CreateExpense, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal(`{"path":"/expenses", "target":"#content"}`, w.Header().Get("HX-Location"))
}

func (s *HandlersTestSuite) TestCreateExpense_Invalid() {
	tests := []struct {
		name    string
		values  url.Values
		message string
	}{
		{"non-numeric amount", url.Values{"title": {"x"}, "amount": {"abc"}}, "Amount must be a number"},
		{"amount too small", url.Values{"title": {"x"}, "amount": {"0.5"}}, "Amount must be between 1 and 500000"},
		{"amount too large", url.Values{"title": {"x"}, "amount": {"500000.01"}}, "Amount must be between 1 and 500000"},
		{"blank title", url.Values{"title": {"   "}, "amount": {"5"}}, "Title is required"},
		{"bad date", url.Values{"title": {"x"}, "amount": {"5"}, "date": {"15/03/2024"}}, "Date must be in YYYY-MM-DD format"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.serve(s.h.CreateExpense, formRequest(http.MethodPost, "/expenses", tt.values))

			s.Equal(http.StatusBadRequest, w.Code)
			s.Contains(w.Body.String(), tt.message)
			s.Contains(w.Body.String(), "expense-form", "form should be shown again")
		})
	}

	list, err := s.store.ListExpenses(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *HandlersTestSuite) TestEditExpenseForm() {
	own := s.addExpense(s.user, "Lunch", "Food", "10.5", "2024-03-10")
	foreign := s.addExpense(s.other, "Theirs", "Food", "10", "2024-03-10")

	tests := []struct {
		name   string
		id     string
		status int
		body   string
	}{
		{"own expense", own.ID.String(), http.StatusOK, `value="10.50"`},
		{"foreign expense", foreign.ID.String(), http.StatusNotFound, "Expense not found"},
		{"missing expense", uuid.NewString(), http.StatusNotFound, "Expense not found"},
		{"malformed id", "not-a-uuid", http.StatusBadRequest, "Invalid expense id"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/expenses/"+tt.id+"/edit", nil)
			req.SetPathValue("id", tt.id)
			w := s.serve(s.h.EditExpenseForm, req)

			s.Equal(tt.status, w.Code)
			s.Contains(w.Body.String(), tt.body)
		})
	}
}

func (s *HandlersTestSuite) TestUpdateExpense() {
	e := s.addExpense(s.user, "Lunch", "Food", "10", "2024-03-10")

	req := formRequest(http.MethodPost, "/expenses/"+e.ID.String(), url.Values{
		"title": {"Brunch"}, "category": {"Restaurants"}, "amount": {"22.5"}, "date": {"2024-03-11"},
	})
	req.SetPathValue("id", e.ID.String())
	w := s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusSeeOther, w.Code)

	got, err := s.store.GetExpense(s.ctx, s.user.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Brunch", got.Title)
	s.Equal("Restaurants", got.Category)
	s.Equal("22.50", got.Amount.StringFixed(2))
	s.Equal("2024-03-11", got.Date)
	s.Equal(e.ID, got.ID)
	s.Equal(s.user.ID, got.OwnerID)
}

func (s *HandlersTestSuite) TestUpdateExpense_ForeignOrInvalid() {
	foreign := s.addExpense(s.other, "Theirs", "Food", "10", "2024-03-10")
	values := url.Values{"title": {"Mine now"}, "amount": {"5"}}

	req := formRequest(http.MethodPost, "/expenses/"+foreign.ID.String(), values)
	req.SetPathValue("id", foreign.ID.String())
	w := s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusNotFound, w.Code)

	got, err := s.store.GetExpense(s.ctx, s.other.ID, foreign.ID)
	s.Require().NoError(err)
	s.Equal("Theirs", got.Title)

	req = formRequest(http.MethodPost, "/expenses/xyz", values)
	req.SetPathValue("id", "xyz")
	w = s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusBadRequest, w.Code)

	own := s.addExpense(s.user, "Mine", "Food", "10", "2024-03-10")
	req = formRequest(http.MethodPost, "/expenses/"+own.ID.String(), url.Values{"title": {"Mine"}, "amount": {"-3"}})
	req.SetPathValue("id", own.ID.String())
	w = s.serve(s.h.UpdateExpense, req)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "/expenses/"+own.ID.String(), "form should post back to the same expense")
}

func (s *HandlersTestSuite) TestDeleteExpense() {
	e := s.addExpense(s.user, "Lunch", "Food", "10", "2024-03-10")
	foreign := s.addExpense(s.other, "Theirs", "Food", "10", "2024-03-10")

	del := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/expenses/"+id+"/delete", nil)
		req.Header.Set("HX-Request", "true")
		req.SetPathValue("id", id)
		return s.serve(s.h.DeleteExpense, req)
	}

	w := del(e.ID.String())
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("HX-Location"), "/expenses")

	_, err := s.store.GetExpense(s.ctx, s.user.ID, e.ID)
	s.ErrorIs(err, storage.ErrNotFound)

	s.Equal(http.StatusNotFound, del(e.ID.String()).Code, "deleted ids stay invalid")
	s.Equal(http.StatusNotFound, del(foreign.ID.String()).Code)
	s.Equal(http.StatusBadRequest, del("123").Code)

	_, err = s.store.GetExpense(s.ctx, s.other.ID, foreign.ID)
	s.NoError(err)
}

func (s *HandlersTestSuite) TestReports() {
	s.addExpense(s.user, "Lunch", "Food", "100", "2024-01-10")
	s.addExpense(s.user, "Train", "Travel", "75", "2024-01-20")
	s.addExpense(s.user, "Dinner", "Food", "50", "2024-02-05")
	s.addExpense(s.other, "Secret", "Hidden", "999", "2024-02-05")

	w := s.serve(s.h.Reports, httptest.NewRequest(http.MethodGet, "/reports", nil))
	s.Equal(http.StatusOK, w.Code)

	body := w.Body.String()
	s.Contains(body, "225.00")
	s.Contains(body, "150.00")
	s.Contains(body, "66.7%")
	s.Contains(body, "2024-01")
	s.Contains(body, "175.00")
	s.Contains(body, "2024-02")
	s.NotContains(body, "Hidden")
	s.Less(strings.Index(body, "Food"), strings.Index(body, "Travel"), "largest category first")
}

func (s *HandlersTestSuite) TestReports_Empty() {
	w := s.serve(s.h.Reports, httptest.NewRequest(http.MethodGet, "/reports", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "0.00")
	s.Contains(w.Body.String(), "No expenses yet.")
}

func (s *HandlersTestSuite) TestFlashConsumedOnce() {
	rec := httptest.NewRecorder()
	s.h.setFlash(rec, FlashSuccess, "Expense added")
	c := findCookie(rec, flashCookieName)
	s.Require().NotNil(c)
	s.False(c.Secure)

	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.AddCookie(c)
	w := s.serve(s.h.ListExpenses, req)

	s.Contains(w.Body.String(), "Expense added")
	s.Contains(w.Body.String(), "flash-success")
	cleared := findCookie(w, flashCookieName)
	s.Require().NotNil(cleared)
	s.Equal(-1, cleared.MaxAge)
}

func (s *HandlersTestSuite) TestFlashCookieSecure() {
	s.h.opts.SecureCookie = true

	rec := httptest.NewRecorder()
	s.h.setFlash(rec, FlashSuccess, "Expense added")
	c := findCookie(rec, flashCookieName)
	s.Require().NotNil(c)
	s.True(c.Secure)

	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	req.AddCookie(c)
	w := s.serve(s.h.ListExpenses, req)
	cleared := findCookie(w, flashCookieName)
	s.Require().NotNil(cleared)
	s.True(cleared.Secure)
}

func (s *HandlersTestSuite) TestHealthz() {
	w := httptest.NewRecorder()
	s.h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ok\n", w.Body.String())

	s.Require().NoError(s.store.Close())
	w = httptest.NewRecorder()
	s.h.Healthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *HandlersTestSuite) TestNotFound() {
	w := httptest.NewRecorder()
	s.h.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	s.Equal(http.StatusNotFound, w.Code)
	s.Contains(w.Body.String(), "404 Not Found")
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
