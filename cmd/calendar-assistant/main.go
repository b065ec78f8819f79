// Command calendar-assistant はカレンダーアシスタントのAPIサーバーとワーカーを起動する。
//
// 使い方:
//
//	calendar-assistant [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/hitoshi/calendar-assistant/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
