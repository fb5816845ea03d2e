// tributeguard moderates memorial tributes: it returns the exact phrases
// of a tribute that break the moderation policy.
package main

import "github.com/ppiankov/tributeguard/internal/cli"

func main() {
	cli.Execute()
}
