package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"guidepost/api/models"
	"guidepost/api/store"
	"guidepost/api/utils"
)

type AuthHandlers struct {
	Operators *store.UserStore
}

func NewAuthHandlers(operators *store.UserStore) *AuthHandlers {
	return &AuthHandlers{Operators: operators}
}

// Signup registers a dashboard operator account.
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("ERROR: Failed to hash password for %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	operator, err := h.Operators.CreateOperator(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrOperatorExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Operator with this email already exists"})
			return
		}
		log.Printf("ERROR: Failed to create operator for email %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register operator"})
		return
	}

	log.Printf("Operator registered: ID=%d, Email=%s", operator.ID, operator.Email)
	c.JSON(http.StatusCreated, gin.H{"message": "Operator registered successfully", "user_email": operator.Email})
}

// Login authenticates an operator and issues the JWT cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	operator, err := h.Operators.GetOperatorByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrOperatorNotFound) {
			log.Printf("ERROR: Database error during login for %s: %v", req.Email, err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(operator.HashedPassword, []byte(req.Password)); err != nil {
		log.Printf("Login failed for email %s: password mismatch", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := utils.GenerateJWT(operator)
	if err != nil {
		log.Printf("ERROR: Failed to generate JWT for operator %d: %v", operator.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(
		"jwt_token",
		tokenString,
		int(24*time.Hour/time.Second),
		"/",
		"",
		false,
		true,
	)

	log.Printf("Operator logged in: ID=%d, Email=%s. JWT issued.", operator.ID, operator.Email)
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user_email": operator.Email,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(
		"jwt_token",
		"",
		-1,
		"/",
		"",
		false,
		true,
	)

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
