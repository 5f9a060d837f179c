package platform_test

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"

	"github.com/goliatone/go-router"
)

// stubContext is a recording router.Context for handler tests. Inputs are
// plain fields; everything a handler writes back (status, JSON body,
// redirects, cookies) is captured for assertions.
type stubContext struct {
	ctx     context.Context
	path    string
	method  string
	body    []byte
	headers map[string]string
	cookies map[string]string
	params  map[string]string
	locals  map[any]any

	nextCalled bool
	nextErr    error
	status     int
	jsonStatus int
	jsonBody   any
	redirectTo string
	rendered   string
	renderBind any
	setCookies []*router.Cookie
}

func newStubContext() *stubContext {
	return &stubContext{
		ctx:     context.Background(),
		method:  "GET",
		headers: map[string]string{},
		cookies: map[string]string{},
		params:  map[string]string{},
		locals:  map[any]any{},
	}
}

func (c *stubContext) cookieValue(name string) (string, bool) {
	// Written cookies shadow the inbound ones.
	for i := len(c.setCookies) - 1; i >= 0; i-- {
		if c.setCookies[i].Name == name {
			return c.setCookies[i].Value, true
		}
	}
	v, ok := c.cookies[name]
	return v, ok
}

func (c *stubContext) Next() error {
	c.nextCalled = true
	return c.nextErr
}

func (c *stubContext) Context() context.Context {
	return c.ctx
}

func (c *stubContext) SetContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *stubContext) Path() string   { return c.path }
func (c *stubContext) Method() string { return c.method }
func (c *stubContext) Body() []byte   { return c.body }

func (c *stubContext) Status(code int) router.Context {
	c.status = code
	return c
}

func (c *stubContext) SendString(string) error { return nil }
func (c *stubContext) Send([]byte) error       { return nil }

func (c *stubContext) JSON(code int, val any) error {
	c.jsonStatus = code
	c.jsonBody = val
	return nil
}

func (c *stubContext) NoContent(code int) error {
	c.status = code
	return nil
}

func (c *stubContext) Render(name string, bind any, _ ...string) error {
	c.rendered = name
	c.renderBind = bind
	return nil
}

func (c *stubContext) Redirect(path string, _ ...int) error {
	c.redirectTo = path
	return nil
}

func (c *stubContext) RedirectToRoute(string, router.ViewContext, ...int) error { return nil }

func (c *stubContext) RedirectBack(fallback string, _ ...int) error {
	c.redirectTo = fallback
	return nil
}

func (c *stubContext) SetHeader(key, val string) router.Context {
	c.headers[key] = val
	return c
}

func (c *stubContext) Header(key string) string {
	return c.headers[key]
}

func (c *stubContext) Get(key string, defaultValue any) any {
	if v, ok := c.locals[key]; ok {
		return v
	}
	return defaultValue
}

func (c *stubContext) GetBool(key string, def bool) bool { return def }
func (c *stubContext) GetInt(key string, def int) int    { return def }

func (c *stubContext) Set(key string, val any) {
	c.locals[key] = val
}

func (c *stubContext) Bind(i any) error {
	return json.Unmarshal(c.body, i)
}

func (c *stubContext) BindJSON(i any) error {
	return json.Unmarshal(c.body, i)
}

func (c *stubContext) BindXML(any) error   { return nil }
func (c *stubContext) BindQuery(any) error { return nil }

func (c *stubContext) CookieParser(any) error { return nil }

func (c *stubContext) Cookie(cookie *router.Cookie) {
	c.setCookies = append(c.setCookies, cookie)
}

func (c *stubContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := c.cookieValue(key); ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubContext) Param(key string, defaultValue ...string) string {
	if v, ok := c.params[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubContext) ParamsInt(key string, def int) int { return def }

func (c *stubContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}
func (c *stubContext) QueryValues(key string) []string           { return nil }
func (c *stubContext) QueryInt(key string, defaultValue int) int { return defaultValue }
func (c *stubContext) Queries() map[string]string                { return map[string]string{} }

func (c *stubContext) GetString(key string, defaultValue string) string { return defaultValue }

func (c *stubContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
		return nil
	}
	return c.locals[key]
}

func (c *stubContext) OriginalURL() string { return c.path }

func (c *stubContext) OnNext(func() error) {}

func (c *stubContext) Referer() string { return c.headers["Referer"] }

func (c *stubContext) LocalsMerge(key any, value map[string]any) map[string]any { return value }

func (c *stubContext) FormFile(key string) (*multipart.FileHeader, error) { return nil, nil }

func (c *stubContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubContext) IP() string { return "" }

func (c *stubContext) SendStatus(code int) error {
	c.status = code
	return nil
}

func (c *stubContext) SendStream(io.Reader) error { return nil }

func (c *stubContext) RouteName() string { return "" }

func (c *stubContext) RouteParams() map[string]string { return c.params }
