// Command countryd serves country directory lookups.
package main

import (
	"github.com/JakeFAU/country-directory/cmd"
)

func main() {
	cmd.Execute()
}
