package main

import (
	"bytes"
	"os"

	"github.com/dimiro1/banner"
)

const Version = "0.1.0"

func printBanner() {
	tpl := "{{ .Title \"CRYOSWEEP\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
