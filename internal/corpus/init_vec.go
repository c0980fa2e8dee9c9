package corpus

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec as an auto-loadable extension on the
	// mattn/go-sqlite3 driver before any connection is opened.
	vec.Auto()
}
