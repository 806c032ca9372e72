package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"HabitQuest/config"
	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/logger"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusOf 根据错误分类映射 HTTP 状态码
func StatusOf(err error) int {
	def, ok := errors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch def.Kind {
	case errors.KindValidation:
		if def.Code == errors.Unauthorized.Code {
			return http.StatusUnauthorized // 401
		}
		return http.StatusBadRequest // 400
	case errors.KindNotFound:
		return http.StatusNotFound // 404
	case errors.KindConflict:
		return http.StatusConflict // 409
	case errors.KindRateLimited:
		return http.StatusTooManyRequests // 429
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// body 非业务错误统一转成 INTERNAL_ERROR，详细信息只写日志
func body(err error, details map[string]interface{}) ErrorResponse {
	if def, ok := errors.As(err); ok && def.Kind != errors.KindInternal {
		return ErrorResponse{Error: ErrorDetail{Code: def.Code, Message: def.Message, Details: details}}
	}

	message := errors.Internal.Message
	if !config.Cfg.IsProduction() {
		message = err.Error()
	}
	return ErrorResponse{Error: ErrorDetail{Code: errors.Internal.Code, Message: message, Details: details}}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := StatusOf(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error("Request failed",
			zap.String("path", string(c.Path())),
			zap.Int("status", statusCode),
			zap.Error(err),
		)
	}

	c.JSON(statusCode, body(err, details))
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

// Accepted 返回 202，用于异步事件投递
func Accepted(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.ValidationFailed.Code,
			Message: err.Error(),
		},
	})
}
