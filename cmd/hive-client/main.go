// cmd/hive-client/main.go
// Entrypoint for the `hive-client` CLI binary. Kept tiny so tests can import
// cmd/hive-client without executing side effects; all logic lives in root.go
// and its sibling command files.
package main

func main() {
	Execute()
}
