package core

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	sessionName   = "blinkshop_session"
	sessionMaxAge = 7 * 24 * 3600
	csrfHeader    = "X-CSRF-Token"
)

// SessionMiddleware loads the seller's cookie session into the context.
// Nothing is written until a handler signs someone in or a CSRF token is issued,
// so anonymous shoppers get no cookie.
func SessionMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			// tampered or rotated-key cookie: start over
			session = sessions.NewSession(store, sessionName)
			session.IsNew = true
		}
		applySessionOptions(cfg, session)
		c.Set("session", session)
		c.Next()
	}
}

type originPolicy map[string]struct{}

func newOriginPolicy(cfg Config) originPolicy {
	p := originPolicy{}
	for _, o := range cfg.AllowedOrigins {
		p[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if u, err := url.Parse(cfg.SiteURL); err == nil && u.Host != "" {
		p[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
	}
	return p
}

// allows treats a request without Origin or Referer as same-origin navigation.
func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p[strings.ToLower(origin)]
	return ok
}

func requestOrigin(c *gin.Context) string {
	if origin := c.GetHeader("Origin"); origin != "" {
		return origin
	}
	if ref := c.GetHeader("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// OriginRefererMiddleware rejects cross-site browser calls and answers CORS preflights
// for the site itself and ALLOWED_ORIGINS.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	policy := newOriginPolicy(cfg)
	return func(c *gin.Context) {
		origin := requestOrigin(c)
		if !policy.allows(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, "+csrfHeader)
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// CSRFMiddleware issues a per-session token on first use and checks it on unsafe methods.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := currentSession(c)
		if session == nil {
			var err error
			if session, err = store.Get(c.Request, sessionName); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
				c.Abort()
				return
			}
			c.Set("session", session)
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			var err error
			if token, err = generateCSRFToken(); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			sent := c.GetHeader(csrfHeader)
			if sent == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Header(csrfHeader, token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// The confirm page posts before the browser holds a session, let alone a token.
func csrfExemptPath(path string) bool {
	return path == "/api/auth/confirm"
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SessionUser is the seller stored in the cookie session after a confirmed magic link.
type SessionUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func currentSession(c *gin.Context) *sessions.Session {
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	return sess
}

// sessionUser returns the signed-in seller, if any.
func sessionUser(c *gin.Context) (SessionUser, bool) {
	sess := currentSession(c)
	if sess == nil {
		return SessionUser{}, false
	}
	id, _ := sess.Values["user_id"].(string)
	email, _ := sess.Values["email"].(string)
	if strings.TrimSpace(id) == "" {
		return SessionUser{}, false
	}
	return SessionUser{UserID: id, Email: email}, true
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
