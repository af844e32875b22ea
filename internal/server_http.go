package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"chatline/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Fullname string `json:"fullname" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	ProfilePic string `json:"profilePic" validate:"required"`
}

type userDTO struct {
	ID         string    `json:"_id"`
	Email      string    `json:"email"`
	Fullname   string    `json:"fullname"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
}

type profileDTO struct {
	Fullname   string `json:"fullname"`
	ProfilePic string `json:"profilePic"`
}

func toUserDTO(u storage.User) userDTO {
	return userDTO{
		ID:         u.ID,
		Email:      u.Email,
		Fullname:   u.Fullname,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
	}
}

func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.Allow(s.clientIP(r)) {
		writeMessage(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Fullname = strings.TrimSpace(req.Fullname)
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, signupValidationMessage(err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("hash password failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	id, err := s.store.CreateUser(r.Context(), req.Email, req.Fullname, hash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			writeMessage(w, http.StatusBadRequest, "Email already exists")
			return
		}
		s.log.Error("create user failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), id)
	if err != nil || user == nil {
		s.log.Error("load new user failed", "user_id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !s.startSession(w, r, user.ID) {
		return
	}
	s.metrics.IncSignup()
	writeJSON(w, http.StatusCreated, toUserDTO(*user))
}

func signupValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Missing required information"
	}
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			return "Missing required information"
		case fe.Field() == "Password" && fe.Tag() == "min":
			return "Password too short"
		case fe.Field() == "Email":
			return "Invalid email"
		}
	}
	return "Invalid signup data"
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.Allow(s.clientIP(r)) {
		writeMessage(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.log.Error("load user failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		writeMessage(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if !s.startSession(w, r, user.ID) {
		return
	}
	s.metrics.IncLogin()
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID string) bool {
	token, expiresAt, err := s.auth.Issue(r.Context(), userID)
	if err != nil {
		s.log.Error("issue token failed", "user_id", userID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	s.auth.SetCookie(w, token, expiresAt)
	return true
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Revoke(r); err != nil {
		s.log.Error("revoke session failed", "error", err)
	}
	s.auth.ClearCookie(w)
	writeMessage(w, http.StatusOK, "logged out successfully")
}

func (s *Server) HandleCheckAuth(w http.ResponseWriter, r *http.Request, identity Identity) {
	user, err := s.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		s.log.Error("load user failed", "user_id", identity.UserID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

func (s *Server) HandleUpdateProfile(w http.ResponseWriter, r *http.Request, identity Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, dataURLLimit(s.maxImageBytes))
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBodyError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Profile pic is required")
		return
	}
	url, ok := s.uploadImage(w, r, req.ProfilePic)
	if !ok {
		return
	}
	if err := s.store.UpdateProfilePic(r.Context(), identity.UserID, url); err != nil {
		s.log.Error("update profile failed", "user_id", identity.UserID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil || user == nil {
		s.log.Error("reload user failed", "user_id", identity.UserID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.gateway.BroadcastProfile(user.ID, profileDTO{Fullname: user.Fullname, ProfilePic: user.ProfilePic})
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// uploadImage decodes a data URL and hosts it, writing the error reply itself.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request, dataURL string) (string, bool) {
	data, err := decodeDataURL(dataURL)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid image")
		return "", false
	}
	if int64(len(data)) > s.maxImageBytes {
		writeMessage(w, http.StatusRequestEntityTooLarge, "image too large")
		return "", false
	}
	if s.uploader == nil {
		writeMessage(w, http.StatusServiceUnavailable, "image uploads are not configured")
		return "", false
	}
	url, err := s.uploader.Upload(r.Context(), data)
	switch {
	case errors.Is(err, ErrImageTooLarge):
		writeMessage(w, http.StatusRequestEntityTooLarge, "image too large")
		return "", false
	case errors.Is(err, ErrUnsupportedImage):
		writeMessage(w, http.StatusUnsupportedMediaType, "unsupported image type")
		return "", false
	case err != nil:
		s.log.Error("image upload failed", "error", err)
		writeMessage(w, http.StatusBadGateway, "image upload failed")
		return "", false
	}
	return url, true
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}
	writeMessage(w, http.StatusBadRequest, "invalid request body")
}

// dataURLLimit is the body cap for a JSON payload carrying a base64 image
// of at most maxImage bytes.
func dataURLLimit(maxImage int64) int64 {
	return maxImage/3*4 + 64<<10
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
