package main

import (
	"os"

	"docqa/cmd/internal/app"
)

func main() {
	os.Exit(app.Main())
}
