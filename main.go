package main

import "github.com/frahmantamala/payment-gate/cmd"

func main() {
	cmd.Execute()
}
