package core

import (
	"cmp"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const maxUploadBody = 24 << 20

// Deps are the collaborators the HTTP layer needs. cmd/api owns their lifecycles.
type Deps struct {
	Sessions *sessions.CookieStore
	Ledger   FreshnessLedger
	Checker  *FreshnessChecker
	Recorder *FreshnessRecorder
	Trigger  LinkTrigger
	Confirm  *ConfirmationHandler
	Gate     *HeadlessGate
	Bypass   *BypassStrategy
	Verifier TokenVerifier
	Uploads  *UploadService
	Listings ListingRepository
	Metrics  *MetricsService
	Log      *zap.Logger
	Now      Clock
}

type emailRequest struct {
	Email string `json:"email"`
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, d Deps) *gin.Engine {
	startedAt := time.Now()
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Log

	r := gin.New()
	r.Use(GinLogger(log), GinRecovery(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Shortcut / automation endpoints: no cookies, no CSRF.
	r.POST("/api/check-auth", func(c *gin.Context) {
		var req emailRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email required")
			return
		}

		res, err := d.Checker.Check(c.Request.Context(), req.Email)
		if err != nil {
			if errors.Is(err, ErrInvalidEmail) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email")
				return
			}
			log.Error("check auth failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Server error")
			return
		}

		if !res.Authenticated {
			d.Metrics.Incr(c.Request.Context(), MetricCheckStale, 1)
			c.JSON(http.StatusOK, gin.H{"authenticated": false, "message": "Authentication required"})
			return
		}
		d.Metrics.Incr(c.Request.Context(), MetricCheckFresh, 1)
		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"message":       "User is authenticated",
			"last_used":     res.LastUsedAt,
		})
	})

	r.GET("/api/check-auth", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":         "Check authentication endpoint",
			"method":          "POST",
			"required_fields": []string{"email"},
		})
	})

	r.POST("/api/record-auth", func(c *gin.Context) {
		var req emailRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email required")
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		err := d.Recorder.Record(c.Request.Context(), token, req.Email)
		switch {
		case err == nil:
		case errors.Is(err, ErrInvalidEmail):
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email")
			return
		case errors.Is(err, ErrMissingProof), errors.Is(err, ErrInvalidToken):
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authentication")
			return
		case errors.Is(err, ErrProofMismatch):
			respondError(c, http.StatusForbidden, "FORBIDDEN", "Token does not belong to this email")
			return
		default:
			log.Error("record auth failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to record authentication")
			return
		}

		d.Metrics.Incr(c.Request.Context(), MetricRecord, 1)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Authentication recorded successfully"})
	})

	r.POST("/api/trigger-magic-link", func(c *gin.Context) {
		var req emailRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Email required")
			return
		}
		if err := d.Trigger.Trigger(c.Request.Context(), req.Email); err != nil {
			if errors.Is(err, ErrInvalidEmail) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email")
				return
			}
			log.Error("trigger magic link failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to send magic link")
			return
		}
		d.Metrics.Incr(c.Request.Context(), MetricMagicLinkSent, 1)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Magic link sent! Check your email, then retry your shortcut.",
		})
	})

	r.POST("/api/shortcut-upload", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBody)
		form, err := formValues(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid upload payload"})
			return
		}
		email := strings.TrimSpace(form.Get("email"))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Email address is required"})
			return
		}
		if _, err := ValidateEmail(email); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Please enter a valid email address"})
			return
		}

		raw := fileValues(form)
		if err := CheckCount(len(raw)); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error()})
			return
		}

		decision := d.Gate.Authorize(ctx, GateRequest{Email: email, AuthHeader: c.GetHeader("Authorization")})
		if !decision.Authorized {
			if decision.Remedy.Action == RemedyCheckEmail {
				d.Metrics.Incr(ctx, MetricGateCheckEmail, 1)
			} else {
				d.Metrics.Incr(ctx, MetricGateAuthFailed, 1)
			}
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": decision.Remedy.Message,
				"action":  decision.Remedy.Action,
			})
			return
		}
		if decision.Strategy == "bypass" {
			d.Metrics.Incr(ctx, MetricGateBypass, 1)
		} else {
			d.Metrics.Incr(ctx, MetricGateFreshness, 1)
		}

		images, err := d.Uploads.Prepare(raw)
		if err != nil {
			var rej *UploadRejection
			if errors.As(err, &rej) {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": rej.Message})
				return
			}
			log.Error("prepare upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Upload failed. Please try again."})
			return
		}

		uploaded, err := d.Uploads.Upload(ctx, email, images)
		if err != nil {
			log.Error("upload failed", zap.String("email", NormalizeEmail(email)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Upload failed. Please try again."})
			return
		}
		d.Metrics.Incr(ctx, MetricImagesUploaded, int64(len(uploaded)))

		urls := make([]string, len(uploaded))
		for i, u := range uploaded {
			urls[i] = u.SecureURL
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     UploadedMessage(len(uploaded)),
			"images":      uploaded,
			"urls":        urls,
			"total_files": len(uploaded),
		})
	})

	r.GET("/api/shortcut-upload", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "BlinkShop Upload API (Base64 support)",
			"limits": gin.H{
				"maxImages":    MaxUploadImages,
				"maxFileSize":  "5MB per image",
				"maxTotalSize": "15MB total",
				"allowedTypes": AllowedImageTypes,
			},
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/listings", func(c *gin.Context) {
			var in CreateListingInput
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if err := in.Validate(); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			token, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			p, err := d.Verifier.Verify(c.Request.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authentication")
					return
				}
				log.Error("verify listing owner failed", zap.Error(err))
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
				return
			}

			listing, err := NewDraftListing(p.UserID, in, d.Now())
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			if err := d.Listings.Create(c.Request.Context(), listing); err != nil {
				log.Error("create listing failed", zap.String("user_id", p.UserID), zap.Error(err))
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to create listing")
				return
			}
			d.Metrics.Incr(c.Request.Context(), MetricListingsCreated, 1)
			log.Info("draft listing created", zap.String("listing_id", listing.ID.String()), zap.String("user_id", p.UserID))

			c.JSON(http.StatusOK, gin.H{
				"success":      true,
				"data":         listing,
				"checkout_url": listingURL(cfg, listing.ID),
				"is_draft":     true,
				"message":      "Draft listing created! Complete payment setup to start accepting orders.",
			})
		})

		api.GET("/listings/:id", func(c *gin.Context) {
			listing, ok := loadListing(c, d)
			if !ok {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "listing not found")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"listing":   listing,
				"available": listing.Available(),
				"remaining": listing.Remaining(),
			})
		})

		admin := api.Group("/admin", OperatorOnly(d.Bypass))
		{
			admin.GET("/metrics", func(c *gin.Context) {
				ctx := c.Request.Context()
				total, err := d.Metrics.Counters(ctx)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read metrics")
					return
				}
				today, err := d.Metrics.Daily(ctx, d.Now())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read metrics")
					return
				}
				c.JSON(http.StatusOK, gin.H{"counters": total, "today": today})
			})

			admin.GET("/system/status", func(c *gin.Context) {
				st, err := CollectSystemStatus(c.Request.Context(), d.Ledger, d.Checker, d.Metrics, startedAt)
				if err != nil {
					log.Error("collect system status failed", zap.Error(err))
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to collect status")
					return
				}
				c.JSON(http.StatusOK, st)
			})

			admin.GET("/ledger/:email", func(c *gin.Context) {
				email, err := ValidateEmail(c.Param("email"))
				if err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email")
					return
				}
				u, err := d.Ledger.Get(c.Request.Context(), email)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "no ledger row")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read ledger")
					return
				}
				fresh, err := d.Checker.Fresh(c.Request.Context(), email)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read ledger")
					return
				}
				c.JSON(http.StatusOK, gin.H{"user": u, "fresh": fresh})
			})
		}
	}

	// Browser endpoints: cookie session.
	browser := r.Group("/", SessionMiddleware(cfg, d.Sessions))
	{
		browser.GET("/auth-confirm", func(c *gin.Context) {
			renderPage(c, "auth_confirm.html", confirmPage{SiteURL: cfg.SiteURL, ConfirmPath: "/api/auth/confirm"})
		})

		browser.POST("/api/auth/confirm", OriginRefererMiddleware(cfg), func(c *gin.Context) {
			var tokens ConfirmTokens
			_ = c.ShouldBindJSON(&tokens)

			res := d.Confirm.Confirm(c.Request.Context(), tokens)
			if res.State != ConfirmRecorded {
				d.Metrics.Incr(c.Request.Context(), MetricConfirmFailed, 1)
				c.JSON(http.StatusUnauthorized, gin.H{
					"status":  res.State,
					"message": "This link is invalid or has expired.",
				})
				return
			}
			d.Metrics.Incr(c.Request.Context(), MetricConfirmRecorded, 1)

			sess := currentSession(c)
			// rotate on sign-in
			sess.Values = map[interface{}]interface{}{}
			sess.Values["user_id"] = res.Session.User.UserID
			sess.Values["email"] = NormalizeEmail(res.Session.User.Email)
			applySessionOptions(cfg, sess)
			if err := sess.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"status":  res.State,
				"message": "You're signed in.",
				"email":   NormalizeEmail(res.Session.User.Email),
			})
		})

		browser.GET("/listing/:id", func(c *gin.Context) {
			listing, ok := loadListing(c, d)
			if !ok {
				c.String(http.StatusNotFound, "Listing not found")
				return
			}
			user, signedIn := sessionUser(c)
			renderPage(c, "listing.html", listingPage{
				Listing:     listing,
				Price:       ListingPrice(listing.PriceCents),
				Available:   listing.Available(),
				Remaining:   listing.Remaining(),
				IsCreator:   signedIn && user.UserID == listing.UserID,
				CheckoutURL: listingURL(cfg, listing.ID),
			})
		})

		sess := browser.Group("/api/v1/session", OriginRefererMiddleware(cfg), CSRFMiddleware(cfg, d.Sessions))
		{
			sess.GET("/me", func(c *gin.Context) {
				user, ok := sessionUser(c)
				if !ok {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "sign in with a magic link first")
					return
				}
				fresh, err := d.Checker.Fresh(c.Request.Context(), user.Email)
				if err != nil {
					log.Warn("freshness lookup for session failed", zap.Error(err))
				}
				c.JSON(http.StatusOK, gin.H{
					"user_id":                user.UserID,
					"email":                  user.Email,
					"shortcut_authenticated": fresh,
				})
			})

			sess.POST("/logout", func(c *gin.Context) {
				s := currentSession(c)
				if s == nil {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "sign in with a magic link first")
					return
				}
				s.Values = map[interface{}]interface{}{}
				applySessionOptions(cfg, s)
				s.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
				if err := s.Save(c.Request, c.Writer); err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
					return
				}
				c.Status(http.StatusNoContent)
			})
		}
	}

	return r
}

func loadListing(c *gin.Context, d Deps) (Listing, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Listing{}, false
	}
	listing, err := d.Listings.Get(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.Log.Error("load listing failed", zap.String("listing_id", id.String()), zap.Error(err))
		}
		return Listing{}, false
	}
	return listing, true
}

func listingURL(cfg Config, id uuid.UUID) string {
	return cfg.SiteURL + "/listing/" + id.String()
}

// formValues reads a multipart body, falling back to a urlencoded one.
func formValues(c *gin.Context) (url.Values, error) {
	if err := c.Request.ParseMultipartForm(maxUploadBody); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		return c.Request.PostForm, nil
	}
	return url.Values(c.Request.MultipartForm.Value), nil
}

// fileValues collects the base64 images sent as file, file1, file2, ... ordered by
// numeric suffix. Blank fields are kept so they count and then fail decoding.
func fileValues(form url.Values) []string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if strings.HasPrefix(k, "file") {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareFileKeys)
	var out []string
	for _, k := range keys {
		out = append(out, form[k]...)
	}
	return out
}

// compareFileKeys puts "file" first, then numeric suffixes in numeric order,
// then anything else by name.
func compareFileKeys(a, b string) int {
	na, aok := fileKeyIndex(a)
	nb, bok := fileKeyIndex(b)
	switch {
	case aok && bok:
		return cmp.Compare(na, nb)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func fileKeyIndex(key string) (int, bool) {
	suffix := strings.TrimPrefix(key, "file")
	if suffix == "" {
		return 0, true
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
