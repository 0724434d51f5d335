package display

import (
	"fmt"
	"io"

	"github.com/backmassage/pixmaster/internal/term"
)

// PrintBanner prints the ASCII art banner; magenta when colors are enabled.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, term.Magenta.Sprint(` ____  _                          _
|  _ \(_)_  ___ __ ___   __ _ ___| |_ ___ _ __
| |_) | \ \/ / '_ `+"`"+` _ \ / _`+"`"+` / __| __/ _ \ '__|
|  __/| |>  <| | | | | | (_| \__ \ ||  __/ |
|_|   |_/_/\_\_| |_| |_|\__,_|___/\__\___|_|
`))
}
