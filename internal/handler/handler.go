package handler

import (
	"errors"
	"net/http"
	"strconv"

	"callcast/internal/auth"
	"callcast/internal/domain"
	"callcast/internal/service"
	"callcast/pkg/logger"
	"callcast/pkg/payment"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP statuses; anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrJoinNotFound),
		errors.Is(err, service.ErrCostPlanNotFound),
		errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrAvatarNotFound),
		errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrGiftNotFound),
		errors.Is(err, service.ErrTweetNotFound),
		errors.Is(err, service.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPersonExceeded):
		return http.StatusNotAcceptable
	case errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrNicknameTaken),
		errors.Is(err, service.ErrAlreadyRegistered),
		errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrAlreadyApplied),
		errors.Is(err, service.ErrAlreadyConfirmed),
		errors.Is(err, service.ErrAlreadyStarted),
		errors.Is(err, service.ErrAlreadyEnded),
		errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrCastBusy),
		errors.Is(err, service.ErrOrderNotOpen),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrTransferResolved):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotOrderOwner),
		errors.Is(err, service.ErrNotCast),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotRoomMember),
		errors.Is(err, service.ErrNotAdmin),
		errors.Is(err, service.ErrInactive),
		errors.Is(err, service.ErrNotVerified),
		errors.Is(err, service.ErrPresentOnlyForCast),
		errors.Is(err, service.ErrReviewNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCreds),
		errors.Is(err, service.ErrLineLogin),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInsufficientPoints),
		errors.Is(err, service.ErrNoCardRegistered),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyTweet),
		errors.Is(err, service.ErrInvalidStars),
		errors.Is(err, service.ErrUnknownInviter),
		errors.Is(err, service.ErrUnknownRoomKind),
		errors.Is(err, service.ErrCannotFollowSelf),
		errors.Is(err, service.ErrGiftReceiver),
		errors.Is(err, service.ErrTransferInfoNeeded):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes the mapped error. Internal errors are logged and answered with msg.
func fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.With("http").WithError(err).WithField("path", c.FullPath()).Error("[HTTP] " + msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// idParam parses a positive numeric path parameter, answering 400 when it is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func parsePage(c *gin.Context) int {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	return page
}

func parsePagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(domain.DefaultPageSize)))
	if limit < 1 || limit > 100 {
		limit = domain.DefaultPageSize
	}
	return parsePage(c), limit
}

func paged(c *gin.Context, data interface{}, total int64, page int) {
	c.JSON(http.StatusOK, gin.H{"data": data, "total": total, "page": page})
}
