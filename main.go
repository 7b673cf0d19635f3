// mermaid-mcp - Mermaid diagram tooling served over the Model Context Protocol.
//
// mermaid-mcp validates, analyzes, optimizes and converts Mermaid diagrams
// and serves a template catalog, over stdio JSON-RPC and a streaming HTTP
// transport.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/mermaid-mcp/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
