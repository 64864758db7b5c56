// hookguard runs as an AI coding agent's hook command. It drops repeated
// and concurrent copies of the same hook event, logs the ones it accepts
// and hands them to the handler bound to their tool.
package main

import "github.com/ppiankov/hookguard/internal/cli"

func main() {
	cli.Execute()
}
