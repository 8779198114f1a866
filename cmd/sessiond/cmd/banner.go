package cmd

import (
	"fmt"
)

const banner = `
                         _                 _
  ___  ___  ___ ___ ___ (_) ___  _ __   __| |
 / __|/ _ \/ __/ __|/ _ \| |/ _ \| '_ \ / _` + "`" + ` |
 \__ \  __/\__ \__ \ (_) | | (_) | | | | (_| |
 |___/\___||___/___/\___/|_|\___/|_| |_|\__,_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Session Gateway - Version %s\x1b[0m\n\n", Version)
}
