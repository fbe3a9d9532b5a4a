package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/revaristo12/chatliver1404/internal/auth"
	"github.com/revaristo12/chatliver1404/internal/handlers"
	"github.com/revaristo12/chatliver1404/internal/middleware"
	"github.com/revaristo12/chatliver1404/internal/realtime"
	"github.com/revaristo12/chatliver1404/internal/services"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Users    *services.UserService
	Rooms    *services.RoomService
	Invites  *services.InviteService
	Requests *services.AccessRequestService
	Messages *services.MessageService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(svc Services, jwt *iauth.JWTService, hub *realtime.Hub) (*gin.Engine, error) {
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if svc.Users == nil || svc.Rooms == nil || svc.Invites == nil || svc.Requests == nil || svc.Messages == nil {
		return nil, fmt.Errorf("all services must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	// Public endpoints
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(svc.Users, jwt)
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	roomHandler := handlers.NewRoomHandler(svc.Rooms)
	rooms := api.Group("/rooms")
	{
		rooms.POST("", roomHandler.Create)
		rooms.GET("", roomHandler.ListPublic)
		rooms.GET("/mine", roomHandler.ListMine)
		rooms.GET("/:slug", roomHandler.Get)
		rooms.DELETE("/:slug", roomHandler.Delete)
		rooms.GET("/:slug/members", roomHandler.Members)
		rooms.PUT("/:slug/members/:userID/role", roomHandler.SetMemberRole)
		rooms.DELETE("/:slug/members/:userID", roomHandler.RemoveMember)
	}

	inviteHandler := handlers.NewInviteHandler(svc.Invites, svc.Rooms)
	rooms.POST("/:slug/invites", inviteHandler.Create)
	rooms.GET("/:slug/invites", inviteHandler.List)
	rooms.POST("/:slug/invites/:id/revoke", inviteHandler.Revoke)
	rooms.DELETE("/:slug/invites/:id", inviteHandler.Delete)
	invites := api.Group("/invites")
	{
		invites.GET("/:code", inviteHandler.Validate)
		invites.POST("/:code/redeem", inviteHandler.Redeem)
	}

	requestHandler := handlers.NewAccessRequestHandler(svc.Requests, svc.Rooms)
	rooms.POST("/:slug/requests", requestHandler.Create)
	rooms.GET("/:slug/requests", requestHandler.ListPending)
	requests := api.Group("/requests")
	{
		requests.POST("/:id/approve", requestHandler.Approve)
		requests.POST("/:id/reject", requestHandler.Reject)
	}

	messageHandler := handlers.NewMessageHandler(svc.Messages, svc.Rooms)
	rooms.POST("/:slug/messages", messageHandler.Create)
	rooms.GET("/:slug/messages", messageHandler.List)
	messages := api.Group("/messages")
	{
		messages.PUT("/:id", messageHandler.Edit)
		messages.DELETE("/:id", messageHandler.Delete)
	}

	realtimeHandler := handlers.NewRealtimeHandler(hub)
	api.GET("/ws", realtimeHandler.Serve)

	return r, nil
}
