package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
)

type UserApi struct {
	userService *services.UserService
	validate    *validator.Validate
}

func NewUserApi(userService *services.UserService) *UserApi {
	return &UserApi{
		userService: userService,
		validate:    validator.New(),
	}
}

// Register email mapping
// @Security Bearer
// @Summary Register the caller's email so other users can address shares to them
// @Description The email is stored only as a salted scrypt hash; resolution requires knowing the exact address
// @Tags Users
// @Accept json
// @Produce json
// @Param mapping body types.InputEmailMapping true "Email to map"
// @Success 204
// @Failure 400 {object} ApiError "invalid email"
// @Router /api/v1/users/email-mapping [put]
func (ua *UserApi) RegisterEmailMapping(c *gin.Context) {
	userID, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	var input types.InputEmailMapping
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if err := ua.validate.Struct(input); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(verr))
			return
		}
		ApiErrorf(c, http.StatusBadRequest, "invalid input: %s", err)
		return
	}
	if err := ua.userService.MapEmail(userID.(string), input.Email); err != nil {
		ApiErrorf(c, http.StatusInternalServerError, "error while mapping email: %s", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resolve a user by email
// @Security Bearer
// @Summary Resolve a recipient user ID by email address
// @Description Returns only the user ID; key material comes from a separate bundle fetch
// @Tags Users
// @Param email path string true "Email address"
// @Produce json
// @Success 200 {object} types.OutputUserID
// @Failure 404 {object} ApiError "no user with that email"
// @Router /api/v1/users/by-email/{email} [get]
func (ua *UserApi) GetUserByEmail(c *gin.Context) {
	_, exists := c.Get("subjectUserID")
	if !exists {
		ApiErrorf(c, http.StatusUnauthorized, "jwt invalid")
		return
	}
	email := c.Param("email")
	if email == "" {
		ApiErrorf(c, http.StatusBadRequest, "invalid email")
		return
	}
	userID, err := ua.userService.ResolveEmail(email)
	if err != nil {
		if err == types.ErrRecipientNotFound {
			ApiErrorf(c, http.StatusNotFound, "no user with that email")
			return
		}
		ApiErrorf(c, http.StatusInternalServerError, "error while resolving email: %s", err)
		return
	}
	c.JSON(http.StatusOK, types.OutputUserID{UserID: userID})
}
