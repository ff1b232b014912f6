package main

import "github.com/tendant/qr-table-ordering/cmd/qr-ordering/cmd"

func main() {
	cmd.Execute()
}
