package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Extras  any  `json:"extras"`
}

func NewResponse(success bool, code int, extras any) Response {
	return Response{
		Success: success,
		Code:    code,
		Extras:  extras,
	}
}

// SuccessResponse returns a JSON response with a success message with no type limitation
func SuccessResponse(c *gin.Context, extras any) {
	c.JSON(
		http.StatusOK,
		NewResponse(
			true,
			http.StatusOK,
			extras,
		))
}

// CreatedResponse is SuccessResponse for a newly created resource.
func CreatedResponse(c *gin.Context, extras any) {
	c.JSON(
		http.StatusCreated,
		NewResponse(
			true,
			http.StatusCreated,
			extras,
		))
}

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(
		code,
		NewResponse(
			false,
			code,
			map[string]interface{}{
				"message": message,
			},
		))
}

// AbortWithError writes e and stops the handler chain.
func AbortWithError(c *gin.Context, e Error) {
	ErrorResponse(c, e.Code, e.Extras)
	c.Abort()
}
