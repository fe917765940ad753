package main

import (
	"fmt"

	"github.com/any-hub/repohub/internal/version"
)

// printVersion 输出版本与提交信息，供 `repohub version` 与 --version 使用。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
