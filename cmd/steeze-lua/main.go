package main

import (
	"log"

	"github.com/joeydtaylor/steeze-lua/pkg/serverfx"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env loaded: %v", err)
	}
	fx.New(serverfx.Module(serverfx.WithService("steeze-lua"))).Run()
}
