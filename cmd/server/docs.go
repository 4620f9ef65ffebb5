package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Finquest Portfolio API
// @version         0.1.0
// @description     Portfolio valuation, transaction ledger, and snapshot history.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
