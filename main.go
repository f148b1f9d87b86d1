package main

import "github.com/suryaprakashreddyadapa/photo-webapp/cmd"

func main() {
	cmd.Execute()
}
