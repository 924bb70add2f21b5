package handlers

import (
	"gigchat/database/repository"

	"github.com/go-redis/redis/v8"
)

// HandlerBundle groups the endpoint handlers and what the auth middleware needs.
type HandlerBundle struct {
	UserRepo  repository.UserRepository
	AuthCache *redis.Client

	User  *UserHandler
	Chat  *ChatHandler
	Job   *JobHandler
	Admin *AdminHandler
}
