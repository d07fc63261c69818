package cmd

import (
	"fmt"
	"io"
)

const banner = `
 __     ___     _           
 \ \   / (_)___(_) ___ __ _ 
  \ \ / /| / __| |/ __/ _` + "`" + ` |
   \ V / | \__ \ | (_| (_| |
    \_/  |_|___/_|\___\__,_|
                            
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Passphrase Account Service - Version %s\x1b[0m\n\n", Version)
}
