package gateway

import (
	"net/http"

	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/service"
	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Number   string `json:"number"`
	Password string `json:"password"`
}

type loginRequest struct {
	Number   string `json:"number"`
	Password string `json:"password"`
}

func (g *Gateway) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	_, err := g.auth.Signup(c.Request.Context(), service.SignupInput{
		Name:     req.Name,
		Age:      req.Age,
		Number:   req.Number,
		Password: req.Password,
	})
	if err != nil {
		g.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful"})
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := g.auth.Login(c.Request.Context(), req.Number, req.Password)
	if err != nil {
		g.respondError(c, err)
		return
	}

	body := gin.H{
		"message": "Login successful",
		"token":   res.Token,
		"role":    res.Role,
	}
	if res.User != nil {
		body["user"] = gin.H{
			"id":     res.User.ID,
			"name":   res.User.Name,
			"age":    res.User.Age,
			"number": res.User.Number,
		}
	}
	c.JSON(http.StatusOK, body)
}

func (g *Gateway) verifyAdmin(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"role": p.Role})
}
