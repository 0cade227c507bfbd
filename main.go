// @title           Labtask Gin API
// @version         1.0
// @description     Lab task scheduling API server

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the token returned by /auth/login
package main

import "github.com/mautops/labtask-gin/cmd"

func main() {
	cmd.Execute()
}
