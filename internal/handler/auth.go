package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/service"
	"github.com/readshelf/readshelf/internal/utils"
)

type registerRequest struct {
	Username  string `validate:"required,min=3,max=32" json:"username"`
	Email     string `validate:"required,email" json:"email"`
	FirstName string `validate:"required,max=64" json:"first_name"`
	LastName  string `validate:"required,max=64" json:"last_name"`
	Password  string `validate:"required,min=8,max=128" json:"password"`
}

type credentials struct {
	Email    string `validate:"required,email" json:"email"`
	Password string `validate:"required" json:"password"`
}

type forgotPasswordRequest struct {
	Email string `validate:"required,email" json:"email"`
}

type resetPasswordRequest struct {
	NewPassword     string `validate:"required,min=8,max=128" json:"new_password"`
	ConfirmPassword string `validate:"required" json:"confirm_new_password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	user, err := h.auth.Register(service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created. Check your email to activate your account",
		"user":    user,
	})
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Activate(chi.URLParam(r, "token")); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account activated. You can login now"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := utils.DecodeValidate(r.Body, &creds); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	token, user, err := h.auth.Login(creds.Email, creds.Password, sessionToken(r))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	h.setSessionCookie(w, token)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "You logged in",
		"user":    user,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(sessionToken(r)); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	clearSessionCookie(w)

	writeJSON(w, http.StatusOK, map[string]string{"message": "You logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(sessionToken(r))
	if err != nil {
		// A dead cookie is useless to the client, drop it.
		if internal_errors.IsStatus(err, http.StatusUnauthorized) {
			clearSessionCookie(w)
		}
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.reset.ForgotPassword(req.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Check your email for a password reset link"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := utils.DecodeValidate(r.Body, &req); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.reset.ResetPassword(chi.URLParam(r, "token"), req.NewPassword, req.ConfirmPassword); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated. You can login now"})
}
