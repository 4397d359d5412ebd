package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/entrypool/contest-service/internal/repo"
	"github.com/entrypool/contest-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Services bundles everything the handlers need.
type Services struct {
	Wallet       *service.WalletService
	Reservations *service.ReservationService
	Lifecycle    *service.LifecycleService
	Webhooks     *service.WebhookService
	Idempotency  *service.IdempotencyStore
}

func RegisterHandlers(r *gin.Engine, svcs Services) {
	v1 := r.Group("/v1", AuthMiddleware())
	{
		v1.GET("/wallet/balance", balanceHandler(svcs.Wallet))
		v1.GET("/wallet/transactions", transactionsHandler(svcs.Wallet))
		v1.POST("/wallet/deposits", depositHandler(svcs.Wallet))
		v1.GET("/contests/:id", contestHandler(svcs.Lifecycle))
		v1.POST("/contests/:id/join", joinHandler(svcs.Idempotency, svcs.Reservations))
		v1.POST("/contests/:id/cancel", cancelHandler(svcs.Lifecycle))
	}
	// processor-facing, authenticated by signature instead of user identity
	r.POST("/webhooks/payment", webhookHandler(svcs.Webhooks))
}

// errorPayload maps an expected failure to its wire shape. A zero status
// means the error is unexpected and should surface as a 500.
func errorPayload(err error) (int, gin.H) {
	var insufficient *service.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusBadRequest, gin.H{
			"code":            "INSUFFICIENT_BALANCE",
			"message":         insufficient.Error(),
			"required_cents":  insufficient.RequiredCents,
			"available_cents": insufficient.AvailableCents,
		}
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrUnsupportedCurrency),
		errors.Is(err, repo.ErrValidation):
		return http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": err.Error()}
	case errors.Is(err, service.ErrAmountMismatch):
		return http.StatusBadRequest, gin.H{"code": "AMOUNT_MISMATCH", "message": err.Error()}
	case errors.Is(err, service.ErrBadSignature):
		return http.StatusBadRequest, gin.H{"code": "BAD_SIGNATURE", "message": err.Error()}
	case errors.Is(err, service.ErrContestNotFound):
		return http.StatusNotFound, gin.H{"code": "CONTEST_NOT_FOUND", "message": err.Error()}
	case errors.Is(err, service.ErrContestFull):
		return http.StatusForbidden, gin.H{"code": "CONTEST_FULL", "message": err.Error()}
	case errors.Is(err, service.ErrContestClosed):
		return http.StatusForbidden, gin.H{"code": "CONTEST_CLOSED", "message": err.Error()}
	case errors.Is(err, service.ErrNotCancellable):
		return http.StatusConflict, gin.H{"code": "NOT_CANCELLABLE", "message": err.Error()}
	case errors.Is(err, service.ErrIdempotencyConflict):
		return http.StatusConflict, gin.H{"code": "IDEMPOTENCY_CONFLICT", "message": err.Error()}
	case errors.Is(err, service.ErrRequestInFlight):
		return http.StatusConflict, gin.H{"code": "REQUEST_IN_FLIGHT", "message": err.Error()}
	case errors.Is(err, service.ErrUnknownIntent):
		return http.StatusConflict, gin.H{"code": "UNKNOWN_INTENT", "message": err.Error()}
	case errors.Is(err, repo.ErrStaleTransition):
		return http.StatusConflict, gin.H{"code": "CONFLICT", "message": err.Error()}
	}
	return 0, nil
}

func writeError(c *gin.Context, err error) {
	if status, payload := errorPayload(err); status != 0 {
		c.JSON(status, payload)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "internal error"})
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.GetBalance(c, currentUser(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bal)
	}
}

func transactionsHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err1 := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, err2 := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err1 != nil || err2 != nil || page < 1 || limit < 1 || limit > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "page must be >= 1 and limit within 1..100"})
			return
		}
		txs, err := svc.GetTransactions(c, currentUser(c), page, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"page": page, "limit": limit, "transactions": txs})
	}
}

type depositReq struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency"`
}

func depositHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": err.Error()})
			return
		}
		pi, err := svc.CreateDeposit(c, currentUser(c), req.AmountCents, req.Currency)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"intent_id":    pi.ID,
			"amount_cents": pi.AmountCents,
			"currency":     pi.Currency,
		})
	}
}

func contestHandler(svc *service.LifecycleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "invalid contest id"})
			return
		}
		contest, err := svc.Get(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":              contest.ID,
			"state":           contest.State,
			"entry_fee_cents": contest.EntryFeeCents,
			"currency":        contest.Currency,
			"max_players":     contest.MaxPlayers,
			"lock_time":       contest.LockTime,
			"start_time":      contest.StartTime,
			"end_time":        contest.EndTime,
		})
	}
}

func joinHandler(idem *service.IdempotencyStore, svc *service.ReservationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUser(c)
		contestID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "invalid contest id"})
			return
		}
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "MISSING_IDEMPOTENCY_KEY", "message": "Idempotency-Key header is required"})
			return
		}
		body, _ := io.ReadAll(c.Request.Body)
		fingerprint := []byte(fmt.Sprintf("user=%d contest=%d body=%s", userID, contestID, body))

		status, resp, err := idem.Do(c, key, "POST /v1/contests/:id/join", fingerprint,
			func(ctx context.Context) (int, interface{}, error) {
				out, err := svc.JoinContest(ctx, userID, contestID)
				if err != nil {
					if s, payload := errorPayload(err); s != 0 {
						return s, payload, nil
					}
					return 0, nil, err
				}
				status := "JOINED"
				if out.AlreadyJoined {
					status = "ALREADY_JOINED"
				}
				return http.StatusOK, gin.H{
					"code":           status,
					"contest_id":     contestID,
					"entry_id":       out.Entry.ID,
					"reservation_id": out.Reservation.ID,
					"amount_cents":   out.Reservation.AmountCents,
				}, nil
			})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(status, "application/json", resp)
	}
}

func cancelHandler(svc *service.LifecycleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "invalid contest id"})
			return
		}
		if err := svc.Cancel(c, id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

func webhookHandler(svc *service.WebhookService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "unreadable body"})
			return
		}
		if !svc.VerifySignature(body, c.GetHeader("signature")) {
			writeError(c, service.ErrBadSignature)
			return
		}
		var evt service.PaymentEventPayload
		if err := json.Unmarshal(body, &evt); err != nil || evt.EventID == "" || evt.IntentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "message": "malformed event payload"})
			return
		}
		if _, err := svc.HandlePaymentEvent(c, evt); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
