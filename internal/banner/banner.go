package banner

import (
	"fmt"
	"io"
)

const Version = "1.0.0"

func Print(w io.Writer) {
	banner := `
                                     _
  _ __  _ __ ___   ___ _ __   __ _(_)_ __   ___
 | '_ \| '_ ' _ \ / _ \ '_ \ / _' | | '_ \ / _ \
 | |_) | | | | | |  __/ | | | (_| | | | | |  __/
 | .__/|_| |_| |_|\___|_| |_|\__, |_|_| |_|\___|
 |_|                         |___/  v%s - Priority Message Engine
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
