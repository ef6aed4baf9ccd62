package handler

import (
	"net/http"

	"storefront/internal/apperror"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError writes err with the status of its apperror kind. Unclassified
// errors are attached to the context for the request logger and answered with
// a generic message.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, response.Error(status, "Internal server error"))
		return
	}
	c.JSON(status, response.Error(status, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
}
