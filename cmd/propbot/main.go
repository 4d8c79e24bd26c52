package main

import (
	"log"

	"github.com/m3rciful/propbot/core/cmd"
)

func main() {
	if err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{".env"},
	}); err != nil {
		log.Fatal(err)
	}
}
