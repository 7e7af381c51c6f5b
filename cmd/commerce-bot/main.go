// Command commerce-bot runs the WhatsApp commerce bot: inbound polling,
// conversation routing, outbound delivery and the admin API.
//
// Usage:
//
//	commerce-bot serve
//	commerce-bot token --subject ops@example.com
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
