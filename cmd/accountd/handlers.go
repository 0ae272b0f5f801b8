package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swaptacular/accountd"
	"github.com/swaptacular/accountd/internal/logger"
)

type handler struct {
	engine *accountd.Engine
	log    *logger.Logger
}

// flowResponse is the uniform answer to every flow step. Outcome is always
// set; the remaining fields depend on the step.
type flowResponse struct {
	Outcome            string `json:"outcome"`
	Message            string `json:"message,omitempty"`
	RedirectURL        string `json:"redirect_url,omitempty"`
	VerificationSecret string `json:"verification_secret,omitempty"`
	RecoveryCode       string `json:"recovery_code,omitempty"`
	Created            bool   `json:"created,omitempty"`
}

func (h *handler) startSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email           string `json:"email"`
		Recover         bool   `json:"recover"`
		DeviceToken     string `json:"device_token"`
		CaptchaResponse string `json:"captcha_response"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.StartSignup(r.Context(), accountd.StartSignupRequest{
		Email:       body.Email,
		Recover:     body.Recover,
		DeviceToken: body.DeviceToken,
	}, body.CaptchaResponse, remoteIP(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Outcome: res.Outcome.String(), Message: res.Message})
}

func (h *handler) acceptSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password     string `json:"password"`
		Confirm      string `json:"confirm"`
		RecoveryCode string `json:"recovery_code"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.AcceptSignup(r.Context(), accountd.AcceptSignupRequest{
		Secret:       mux.Vars(r)["secret"],
		Password:     body.Password,
		Confirm:      body.Confirm,
		RecoveryCode: body.RecoveryCode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{
		Outcome:      res.Outcome.String(),
		Message:      res.Message,
		RecoveryCode: res.RecoveryCode,
		Created:      res.Created,
	})
}

func (h *handler) performLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Challenge   string `json:"challenge"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DeviceToken string `json:"device_token"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.PerformLogin(r.Context(), accountd.PerformLoginRequest{
		Challenge:   body.Challenge,
		Email:       body.Email,
		Password:    body.Password,
		DeviceToken: body.DeviceToken,
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (h *handler) verifyLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.VerifyLogin(r.Context(), accountd.VerifyRequest{
		Secret: body.Secret,
		Code:   body.Code,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (h *handler) performConsent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Challenge string `json:"challenge"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.PerformConsent(r.Context(), body.Challenge)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RedirectURL   string   `json:"redirect_url"`
		GrantedScopes []string `json:"granted_scopes"`
	}{res.RedirectURL, res.GrantedScopes})
}

func (h *handler) startEmailChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID    int64  `json:"account_id"`
		Password     string `json:"password"`
		NewEmail     string `json:"new_email"`
		RecoveryCode string `json:"recovery_code"`
		DeviceToken  string `json:"device_token"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.StartEmailChange(r.Context(), accountd.StartEmailChangeRequest{
		AccountID:    body.AccountID,
		Password:     body.Password,
		NewEmail:     body.NewEmail,
		RecoveryCode: body.RecoveryCode,
		DeviceToken:  body.DeviceToken,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Outcome: res.Outcome.String(), Message: res.Message})
}

func (h *handler) acceptEmailChange(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.AcceptEmailChange(r.Context(), accountd.AcceptEmailChangeRequest{
		Secret: mux.Vars(r)["secret"],
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Outcome: res.Outcome.String()})
}

func loginResponse(res accountd.LoginResult) flowResponse {
	return flowResponse{
		Outcome:            res.Outcome.String(),
		Message:            res.Message,
		RedirectURL:        res.RedirectURL,
		VerificationSecret: res.VerificationSecret,
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed", "path", r.URL.Path, "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, accountd.ErrAuthServerUnavailable) || errors.Is(err, accountd.ErrSecretStoreUnavailable) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{"internal failure"})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, struct {
			Error string `json:"error"`
		}{"malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func remoteIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
