package main

import (
	"fmt"

	"dreamproxy/internal/config"
)

func main() {
	fmt.Println("# Proxy Environment Variables")
	fmt.Println()
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println("The short names `OPENAI_API_KEY`, `MODEL` and `PORT` win over the structured ones.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	for _, example := range config.EnvExample(&config.Config{}) {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Credential and model")
	fmt.Println("export OPENAI_API_KEY=sk-...")
	fmt.Println("export MODEL=gpt-4.1-mini")
	fmt.Println()
	fmt.Println("# Tighter quota")
	fmt.Println("export DREAMPROXY_PROXY_RATELIMIT_WINDOW=10m")
	fmt.Println("export DREAMPROXY_PROXY_RATELIMIT_MAXREQUESTS=5")
	fmt.Println()
	fmt.Println("# Share quotas across replicas")
	fmt.Println("export DREAMPROXY_PROXY_RATELIMIT_STORAGE=redis")
	fmt.Println()
	fmt.Println("./dreamproxy -config proxy.yaml")
	fmt.Println("```")
}
