package httpadapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kirillkom/portfolio-chatbot/internal/config"
	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

func postForm(handler http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func getPage(handler http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("response did not set %s cookie", sessionCookieName)
	return nil
}

func TestUIIndexRendersLandingPage(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := getPage(handler, "/")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	for _, want := range []string{
		"<title>My Portfolio Chatbot</title>",
		"Ask me anything! I&#39;m powered by fake-model (fake).",
		`placeholder="What would you like to ask?"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page is missing %q", want)
		}
	}
	if strings.Contains(body, "/debug/models") {
		t.Fatalf("debug link must be hidden by default")
	}
}

func TestUIChatFlowRendersMarkdownWithoutRawHTML(t *testing.T) {
	model := &scriptedModel{reply: domain.ModelReply{Text: "Ada is **great**.\n\n<script>alert(1)</script>"}}
	handler := newTestRouter(t, config.Config{}, model, nil)

	res := postForm(handler, "/chat", url.Values{"question": {"Who is <b>Ada</b>?"}})
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", res.Code, res.Header().Get("Location"))
	}
	cookie := sessionCookie(t, res)
	if !cookie.HttpOnly || !domain.ValidSessionID(cookie.Value) {
		t.Fatalf("unexpected session cookie: %+v", cookie)
	}

	page := getPage(handler, "/", cookie).Body.String()
	if !strings.Contains(page, "Who is &lt;b&gt;Ada&lt;/b&gt;?") {
		t.Fatalf("user message must be escaped, got:\n%s", page)
	}
	if !strings.Contains(page, "<strong>great</strong>") {
		t.Fatalf("assistant markdown was not rendered, got:\n%s", page)
	}
	if strings.Contains(page, "<script>alert(1)</script>") {
		t.Fatalf("raw HTML from the model must not reach the page")
	}

	res = postForm(handler, "/chat", url.Values{"question": {"More?"}}, cookie)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("second turn expected 303, got %d", res.Code)
	}
	if len(res.Result().Cookies()) != 0 {
		t.Fatalf("existing session must be reused")
	}
	if got := len(model.lastRequest(t).History); got != 2 {
		t.Fatalf("expected two history messages on second turn, got %d", got)
	}
}

func TestUIChatShowsFallbackWarning(t *testing.T) {
	model := &scriptedModel{err: errors.New("provider down")}
	handler := newTestRouter(t, config.Config{}, model, nil)

	res := postForm(handler, "/chat", url.Values{"question": {"Hello"}})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	page := getPage(handler, "/", sessionCookie(t, res)).Body.String()
	if !strings.Contains(page, "assistant fallback") {
		t.Fatalf("fallback reply must use the warning style")
	}
	if !strings.Contains(page, "Please check the API.") {
		t.Fatalf("fallback answer missing from page")
	}
}

func TestUIChatRejectsEmptyQuestion(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := postForm(handler, "/chat", url.Values{"question": {"   "}})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Please enter a question.") {
		t.Fatalf("expected validation message in page")
	}
}

func TestUIResetClearsConversation(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := postForm(handler, "/chat", url.Values{"question": {"Remember me"}})
	cookie := sessionCookie(t, res)

	res = postForm(handler, "/reset", nil, cookie)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if cleared := sessionCookie(t, res); cleared.MaxAge >= 0 {
		t.Fatalf("reset must expire the session cookie, got %+v", cleared)
	}
	if page := getPage(handler, "/", cookie).Body.String(); strings.Contains(page, "Remember me") {
		t.Fatalf("conversation should be gone after reset")
	}
}

func TestUIDebugModelsRequiresFlag(t *testing.T) {
	lister := fakeModelLister{models: []domain.ModelInfo{{Name: "gemini-pro", DisplayName: "Gemini Pro", SupportedActions: []string{"generateContent"}}}}

	disabled := newTestRouter(t, config.Config{}, nil, lister)
	if res := getPage(disabled, "/debug/models"); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when disabled, got %d", res.Code)
	}

	enabled := newTestRouter(t, config.Config{UIDebugModels: true}, nil, lister)
	res := getPage(enabled, "/debug/models")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Gemini Pro") {
		t.Fatalf("model listing missing from page")
	}
	if !strings.Contains(getPage(enabled, "/").Body.String(), "/debug/models") {
		t.Fatalf("debug link should be shown when enabled")
	}
}
