// Command ballot samples poll tables and prints normalized support
// percentages for Turkish general and local elections.
package main

import "github.com/ahrav/go-ballot/internal/cli"

func main() {
	cli.Main()
}
