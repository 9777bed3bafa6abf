package main

import (
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
