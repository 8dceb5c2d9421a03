// Command upsync keeps vendored copies of upstream native libraries in
// sync with their pinned revisions.
package main

import "github.com/goplus/upsync/cmd/upsync/internal"

func main() {
	internal.Execute()
}
