package main

import "peircevlm/internal/app"

func main() {
	app.Main()
}
